package alerting

import (
	"fmt"
	"sort"
	"time"

	"availwatch/internal/detector"
	"availwatch/internal/status"
)

// StepKind distinguishes the delivery paths of a plan.
type StepKind int

const (
	StepStandard StepKind = iota
	StepUrgent
	StepInterrupt
)

func (k StepKind) String() string {
	switch k {
	case StepUrgent:
		return "urgent"
	case StepInterrupt:
		return "interrupt"
	default:
		return "standard"
	}
}

// Step is one scheduled delivery, relative to the start of the plan.
type Step struct {
	Offset time.Duration
	Kind   StepKind
	Alert  Alert
}

// Options control escalation pacing.
type Options struct {
	StandardSpacing  time.Duration
	UrgentDeliveries int
	UrgentSpacing    time.Duration
	TestSpacing      time.Duration
}

// DefaultOptions returns the standard pacing: 800ms apart, 3 urgent deliveries 5s apart.
func DefaultOptions() Options {
	return Options{
		StandardSpacing:  800 * time.Millisecond,
		UrgentDeliveries: 3,
		UrgentSpacing:    5 * time.Second,
		TestSpacing:      time.Second,
	}
}

// Content names the watched product in alert texts.
type Content struct {
	ProductName string
	StoreURL    string
}

func (c Content) product() string {
	if c.ProductName == "" {
		return "Product"
	}
	return c.ProductName
}

// Headline is the alert title for a status.
func (c Content) Headline(s status.Status) string {
	name := c.product()
	switch s {
	case status.PreorderAvailable:
		return name + " Pre-order Available!"
	case status.Available:
		return name + " Available Now!"
	case status.SoldOut:
		return name + " Sold Out"
	case status.NotAvailable:
		return name + " Status Changed"
	default:
		return name + " Status Update"
	}
}

// Message is the alert body for a status.
func (c Content) Message(s status.Status) string {
	name := "The " + c.product()
	switch s {
	case status.PreorderAvailable:
		return name + " is now available for pre-order! Open the store page."
	case status.Available:
		return name + " is now available to purchase! Open the store page."
	case status.SoldOut:
		return name + " has sold out."
	case status.NotAvailable:
		return name + " is currently not available."
	default:
		return "Unable to determine " + c.product() + " availability."
	}
}

// BuildPlan expands an episode into its ordered deliveries.
// The standard tier always runs; the urgent tier and the interrupt hand-off only when ep.Urgent.
func BuildPlan(ep detector.Episode, opts Options, content Content) []Step {
	title := content.Headline(ep.TriggeringStatus)
	body := content.Message(ep.TriggeringStatus)

	steps := standardSteps(ep.ID, ep.Count, opts.StandardSpacing, title, body, content.StoreURL)
	if ep.Urgent {
		steps = append(steps, urgentSteps(ep.ID, title, opts, content.StoreURL)...)
	}
	sortSteps(steps)
	return steps
}

// BuildTestPlan is the "test notification" variant: TEST titled, 1s spacing, shifted by delay.
func BuildTestPlan(id string, count int, urgent bool, delay time.Duration, opts Options, content Content) []Step {
	if count < 1 {
		count = 1
	}
	spacing := opts.TestSpacing
	if spacing <= 0 {
		spacing = time.Second
	}
	title := "TEST: " + content.product() + " Available"

	steps := make([]Step, 0, count+opts.UrgentDeliveries+1)
	for i := 0; i < count; i++ {
		steps = append(steps, Step{
			Offset: delay + time.Duration(i)*spacing,
			Kind:   StepStandard,
			Alert: Alert{
				Key:         fmt.Sprintf("%s/test/%d", id, i+1),
				Title:       title,
				Body:        "This is a test notification.",
				Label:       fmt.Sprintf("%d/%d", i+1, count),
				Priority:    PriorityHigh,
				AutoDismiss: true,
			},
		})
	}
	if urgent {
		for _, step := range urgentSteps(id+"/test", "TEST: "+content.product()+" Available!", opts, content.StoreURL) {
			step.Offset += delay
			steps = append(steps, step)
		}
	}
	sortSteps(steps)
	return steps
}

func standardSteps(id string, count int, spacing time.Duration, title, body, target string) []Step {
	if count < 1 {
		count = 1
	}
	steps := make([]Step, 0, count)
	for i := 0; i < count; i++ {
		steps = append(steps, Step{
			Offset: time.Duration(i) * spacing,
			Kind:   StepStandard,
			Alert: Alert{
				Key:          fmt.Sprintf("%s/standard/%d", id, i+1),
				Title:        title,
				Body:         body,
				Label:        fmt.Sprintf("%d/%d", i+1, count),
				Priority:     PriorityHigh,
				ActionTarget: target,
				AutoDismiss:  true,
			},
		})
	}
	return steps
}

func urgentSteps(id, message string, opts Options, target string) []Step {
	steps := []Step{{
		Offset: 0,
		Kind:   StepInterrupt,
		Alert:  Alert{Key: id + "/interrupt", Title: message, Priority: PriorityMax, Urgent: true, ActionTarget: target},
	}}
	for i := 0; i < opts.UrgentDeliveries; i++ {
		steps = append(steps, Step{
			Offset: time.Duration(i) * opts.UrgentSpacing,
			Kind:   StepUrgent,
			Alert: Alert{
				Key:          fmt.Sprintf("%s/urgent/%d", id, i+1),
				Title:        "🚨 URGENT: " + message,
				Body:         "Open the store page immediately!",
				Priority:     PriorityMax,
				ActionTarget: target,
				Urgent:       true,
				AutoDismiss:  true,
			},
		})
	}
	return steps
}

func sortSteps(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Offset < steps[j].Offset })
}

package status

// Status is the availability state of the watched product.
type Status int

const (
	Unknown Status = iota
	NotAvailable
	PreorderAvailable
	Available
	SoldOut
)

// All lists every status in declaration order.
var All = []Status{Unknown, NotAvailable, PreorderAvailable, Available, SoldOut}

// Classify maps the storefront flags to a Status. First matching row wins.
func Classify(comingSoon, hasPrice, hasPurchaseOptions bool) Status {
	switch {
	case !comingSoon && hasPurchaseOptions && hasPrice:
		return Available
	case comingSoon && hasPurchaseOptions:
		return PreorderAvailable
	default:
		return NotAvailable
	}
}

// IsSignificantUpgrade reports whether moving from old to next warrants an alert.
// Only entering PreorderAvailable or Available counts; regressions never do.
func IsSignificantUpgrade(old, next Status) bool {
	if old == next {
		return false
	}
	return next == PreorderAvailable || next == Available
}

// Display 返回面向用户的状态文本。
func (s Status) Display() string {
	switch s {
	case NotAvailable:
		return "Not Available"
	case PreorderAvailable:
		return "Pre-order Available!"
	case Available:
		return "Available Now!"
	case SoldOut:
		return "Sold Out"
	default:
		return "Unknown"
	}
}

// StorageKey returns the persisted representation.
func (s Status) StorageKey() string {
	switch s {
	case NotAvailable:
		return "NOT_AVAILABLE"
	case PreorderAvailable:
		return "PREORDER_AVAILABLE"
	case Available:
		return "AVAILABLE"
	case SoldOut:
		return "SOLD_OUT"
	default:
		return "UNKNOWN"
	}
}

// String implements fmt.Stringer using the storage key.
func (s Status) String() string {
	return s.StorageKey()
}

// Rank orders statuses by how close the product is to being purchasable.
func (s Status) Rank() int {
	switch s {
	case NotAvailable:
		return 1
	case SoldOut:
		return 2
	case PreorderAvailable:
		return 3
	case Available:
		return 4
	default:
		return 0
	}
}

// Parse is the inverse of StorageKey. Unrecognised input yields Unknown.
func Parse(value string) Status {
	switch value {
	case "NOT_AVAILABLE":
		return NotAvailable
	case "PREORDER_AVAILABLE":
		return PreorderAvailable
	case "AVAILABLE":
		return Available
	case "SOLD_OUT":
		return SoldOut
	default:
		return Unknown
	}
}

// MarshalText encodes the status as its storage key.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.StorageKey()), nil
}

// UnmarshalText never fails; unknown keys decode to Unknown.
func (s *Status) UnmarshalText(text []byte) error {
	*s = Parse(string(text))
	return nil
}

package enums

// DocumentKind names the billing document a reservation qualifies for.
type DocumentKind string

const (
	DocumentNone     DocumentKind = "none"
	DocumentInvoice  DocumentKind = "invoice"
	DocumentProforma DocumentKind = "proforma"
)

// String implements fmt.Stringer.
func (d DocumentKind) String() string {
	return string(d)
}

package enums

// PaymentMethod is how a reservation is settled.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
)

var paymentMethods = []PaymentMethod{PaymentMethodCard, PaymentMethodCash}

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool { return oneOf(paymentMethods, m) }

package enums

import "fmt"

// PaymentMethod tags how an order settles on delivery.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodPrepaid  PaymentMethod = "prepaid"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodTransfer,
	PaymentMethodPrepaid,
}

func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

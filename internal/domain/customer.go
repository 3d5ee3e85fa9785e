package domain

// Customer - аутентифицированный покупатель.
// PaymentCustomerID пуст, пока процессор не выпустил запись покупателя.
type Customer struct {
	ID                string `json:"id"`
	Email             string `json:"email,omitempty"`
	PaymentCustomerID string `json:"payment_customer_id,omitempty"`
}

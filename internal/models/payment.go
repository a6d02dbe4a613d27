package models

// IntentRequest is the body of the create-intent endpoint.
type IntentRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Amount          int64  `json:"amount"` // cents
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

type IntentResponse struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	CustomerID      string `json:"customer"`
	EphemeralKey    string `json:"ephemeral_key,omitempty"`
}

// PayRequest authorizes an existing intent with the selected payment method.
type PayRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	CustomerID      string `json:"customer_id"`
}

type PayResponse struct {
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

package domain

// PaymentIntent - одноразовый токен процессора для одной попытки оформления.
// Отдельно не хранится и отбрасывается после завершения попытки.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	CustomerID   string
	AmountMinor  int64
	Currency     string
}

// PaymentSheetConfig - конфигурация внешнего платёжного UI.
type PaymentSheetConfig struct {
	MerchantDisplayName string   `json:"merchant_display_name"`
	DefaultCountry      string   `json:"default_country"`
	AllowedMethods      []string `json:"allowed_methods"`
}

// PaymentOutcome - итог работы платёжного UI.
type PaymentOutcome string

const (
	// PaymentOutcomeCompleted - оплата подтверждена.
	PaymentOutcomeCompleted PaymentOutcome = "completed"
	// PaymentOutcomeFailed - процессор отклонил платёж.
	PaymentOutcomeFailed PaymentOutcome = "failed"
	// PaymentOutcomeCanceled - пользователь закрыл платёжный UI.
	PaymentOutcomeCanceled PaymentOutcome = "canceled"
)

// Valid проверяет, что итог относится к поддерживаемым значениям.
func (o PaymentOutcome) Valid() bool {
	switch o {
	case PaymentOutcomeCompleted, PaymentOutcomeFailed, PaymentOutcomeCanceled:
		return true
	default:
		return false
	}
}

// PaymentResult - сообщение от платёжного UI: Completed | Failed(err) | Canceled.
// IntentID, если задан, должен совпадать с текущим intent оркестратора.
type PaymentResult struct {
	Outcome  PaymentOutcome
	IntentID string
	Err      error
}

// PaymentCompleted конструирует успешный результат.
func PaymentCompleted(intentID string) PaymentResult {
	return PaymentResult{Outcome: PaymentOutcomeCompleted, IntentID: intentID}
}

// PaymentFailedWith конструирует результат с ошибкой процессора.
func PaymentFailedWith(intentID string, err error) PaymentResult {
	return PaymentResult{Outcome: PaymentOutcomeFailed, IntentID: intentID, Err: err}
}

// PaymentCanceled конструирует результат отмены пользователем.
func PaymentCanceled(intentID string) PaymentResult {
	return PaymentResult{Outcome: PaymentOutcomeCanceled, IntentID: intentID}
}

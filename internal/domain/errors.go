package domain

import "errors"

var (
	// Ошибка отсутствующего (неаутентифицированного) покупателя.
	ErrCustomerRequired = errors.New("authenticated customer is required")
	// Ошибка попытки оформить пустую корзину (итог равен нулю).
	ErrCartEmpty = errors.New("cart is empty")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка отрицательной цены товара.
	ErrPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// ErrUnsupportedCurrency - код валюты не распознан при переводе в минимальные единицы.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrTotalMismatch = errors.New("order total does not match lines sum")
	// Ошибка неполного адреса доставки.
	ErrShippingAddressIncomplete = errors.New("shipping address is incomplete")
	// ErrOrderNotFound возвращается, если заказ не найден в журнале.
	ErrOrderNotFound = errors.New("order not found")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order id is required")
	// ErrOrderExists возвращается, если заказ с таким ID уже записан.
	ErrOrderExists = errors.New("order already exists")
	// ErrProductNotFound возвращается каталогом для неизвестного товара.
	ErrProductNotFound = errors.New("product not found")
	// ErrCustomerNotFound возвращается хранилищем покупателей.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrBlobNotFound - в локальном хранилище нет значения по ключу.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrCartPersist - не удалось сохранить корзину; состояние в памяти остаётся актуальным.
	ErrCartPersist = errors.New("cart persist failed")

	// ErrPaymentGateway - временная ошибка платёжного шлюза (сеть, создание customer/intent).
	ErrPaymentGateway = errors.New("payment gateway unavailable")
	// ErrPaymentFailed - платёж отклонён процессором (бизнес-ошибка).
	ErrPaymentFailed = errors.New("payment failed")
	// ErrOrderWriteFailed - деньги списаны, но заказ не записан; требуется повтор финализации.
	ErrOrderWriteFailed = errors.New("order write failed after payment")

	// ErrIllegalTransition - операция недопустима в текущем состоянии оформления.
	ErrIllegalTransition = errors.New("illegal checkout state transition")
	// ErrStaleIntent - результат относится к уже неактуальному payment intent.
	ErrStaleIntent = errors.New("stale payment intent")
	// ErrFinalizeInFlight - финализация для этого снимка корзины уже выполняется.
	ErrFinalizeInFlight = errors.New("order finalize already in flight")

	// ErrOutboxPublish - ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsGatewayError проверяет, относится ли ошибка к временным сбоям платёжного шлюза.
func IsGatewayError(err error) bool {
	return errors.Is(err, ErrPaymentGateway)
}

// IsOrderWriteFailure проверяет, является ли ошибка сбоем записи оплаченного заказа.
func IsOrderWriteFailure(err error) bool {
	return errors.Is(err, ErrOrderWriteFailed)
}

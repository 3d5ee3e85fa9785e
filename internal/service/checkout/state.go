package checkout

// State - состояние попытки оформления заказа.
type State string

const (
	StateIdle              State = "idle"
	StateIntentPending     State = "intent_pending"
	StateIntentReady       State = "intent_ready"
	StateAwaitingPaymentUI State = "awaiting_payment_ui"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
	StateCanceled          State = "canceled"
	StateOrderPending      State = "order_pending"
	StateOrderWritten      State = "order_written"
	StateOrderWriteFailed  State = "order_write_failed"
)

// transitions - все допустимые переходы. Любой переход вне таблицы запрещён.
var transitions = map[State][]State{
	StateIdle:              {StateIntentPending},
	StateIntentPending:     {StateIntentPending, StateIntentReady},
	StateIntentReady:       {StateIntentPending, StateAwaitingPaymentUI},
	StateAwaitingPaymentUI: {StateCompleted, StateFailed, StateCanceled},
	StateCompleted:         {StateOrderPending},
	StateFailed:            {StateIntentPending},
	StateCanceled:          {StateIntentPending},
	StateOrderPending:      {StateOrderWritten, StateOrderWriteFailed},
	StateOrderWriteFailed:  {StateOrderPending},
	StateOrderWritten:      {StateIntentPending},
}

// CanTransitionTo сообщает, разрешён ли переход из s в next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Ready сообщает, может ли пользователь перейти к оплате.
func (s State) Ready() bool {
	return s == StateIntentReady || s == StateAwaitingPaymentUI
}

// Terminal сообщает, завершена ли попытка оформления записью заказа.
func (s State) Terminal() bool {
	return s == StateOrderWritten
}

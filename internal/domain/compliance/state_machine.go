package compliance

import "fmt"

// Trigger: событие, меняющее статус записи соответствия.
type Trigger string

const (
	// TriggerSweep: периодическая проверка отправила уведомление.
	TriggerSweep Trigger = "sweep"
	// TriggerApprove: мейнтейнер подтвердил контент.
	TriggerApprove Trigger = "approve"
	// TriggerEdit: мейнтейнер прислал правки.
	TriggerEdit Trigger = "edit"
	// TriggerProcessed: менеджер обработал ответ мейнтейнера.
	TriggerProcessed Trigger = "processed"
)

// targets: целевой статус для каждого события.
var targets = map[Trigger]Status{
	TriggerSweep:     StatusOverdue,
	TriggerApprove:   StatusCompliant,
	TriggerEdit:      StatusPendingChanges,
	TriggerProcessed: StatusCompliant,
}

// validTransitions: матрица допустимых переходов.
// По текущему статусу хранится набор допустимых целевых статусов.
// Обратного перехода в pending нет: статус pending бывает только у новой записи.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:        {StatusOverdue: true, StatusCompliant: true, StatusPendingChanges: true},
	StatusOverdue:        {StatusOverdue: true, StatusCompliant: true, StatusPendingChanges: true},
	StatusPendingChanges: {StatusOverdue: true, StatusCompliant: true, StatusPendingChanges: true},
	StatusCompliant:      {StatusCompliant: true, StatusPendingChanges: true},
}

// TransitionError: ошибка недопустимого перехода статуса.
type TransitionError struct {
	From    Status
	To      Status
	Trigger Trigger
	Message string
}

func (e *TransitionError) Error() string {
	return e.Message
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// Next вычисляет новый статус записи для события trigger.
// Возвращает *TransitionError, если событие неизвестно или переход запрещён.
func Next(from Status, trigger Trigger) (Status, error) {
	to, ok := targets[trigger]
	if !ok {
		return from, &TransitionError{
			From:    from,
			Trigger: trigger,
			Message: fmt.Sprintf("неизвестное событие %q", trigger),
		}
	}
	if !CanTransition(from, to) {
		return from, &TransitionError{
			From:    from,
			To:      to,
			Trigger: trigger,
			Message: fmt.Sprintf("переход %s → %s по событию %s запрещён", from, to, trigger),
		}
	}
	return to, nil
}

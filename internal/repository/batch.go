package repository

// idBatch - простой аккумулятор id для batch-мутаций.
//
// Дедуплицирует id, сохраняя порядок первой регистрации, чтобы один
// statement мутировал каждую строку ровно один раз.
type idBatch struct {
	ids  []int64
	seen map[int64]struct{}
}

func newIDBatch() *idBatch {
	return &idBatch{seen: make(map[int64]struct{})}
}

// BatchID регистрирует id в ожидающей партии
func (b *idBatch) BatchID(id int64) {
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.ids = append(b.ids, id)
}

// collect выполняет fn и возвращает накопленные id.
// Пустая партия - нарушение контракта вызывающего (fail fast).
func collect(fn func(BatchAccumulator)) ([]int64, error) {
	b := newIDBatch()
	fn(b)
	if len(b.ids) == 0 {
		return nil, ErrEmptyBatch
	}
	return b.ids, nil
}

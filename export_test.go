package sqlfrag

func (db *DB) NumOpen() int {
	db.handles.mutex.Lock()
	defer db.handles.mutex.Unlock()
	return len(db.handles.open)
}

func (db *DB) NumPending() int {
	db.handles.mutex.Lock()
	defer db.handles.mutex.Unlock()
	return len(db.handles.pending)
}

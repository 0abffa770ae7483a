package ledger

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
func SeedBalance(l Ledger, accountID string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		acc, exists := mem.accounts[accountID]
		if !exists {
			acc = &accountState{entries: make(map[string]int64)}
			mem.accounts[accountID] = acc
		}
		mem.mu.Unlock()

		acc.mu.Lock()
		acc.balance = amount
		acc.mu.Unlock()
	}
}

// NetEffect reports the signed sum of the in-memory postings made for a
// transaction reference. It returns 0 for other backends.
func NetEffect(l Ledger, accountID, reference string) int64 {
	if mem, ok := l.(*inMemoryLedger); ok {
		return mem.netEffect(accountID, reference)
	}
	return 0
}

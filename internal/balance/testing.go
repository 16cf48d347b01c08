package balance

// SeedBalance is a test helper that overwrites the totals of an account when
// using the in-memory store. The account is created if missing.
func SeedBalance(s Store, userID string, total, used int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		account := mem.accounts[userID]
		account.UserID = userID
		account.TotalPoints = total
		account.UsedPoints = used
		account.Version++
		mem.accounts[userID] = account
	}
}

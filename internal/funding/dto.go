package funding

// CreditRequest is the admin body for funding or rewarding a wallet.
type CreditRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
	Note      string `json:"note"`
	Source    string `json:"source"`
}

// VirtualAccountRequest carries the identity used to reserve a virtual account.
type VirtualAccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	BVN   string `json:"bvn"`
}

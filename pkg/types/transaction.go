package types

// Transaction is a signed transfer between two RSA-keyed parties.
//
// Only (Sender, Message, Transfer) is covered by Signature — Buyer
// and Seller are not signed.
type Transaction struct {
	Sender    string  `json:"sender"`
	Buyer     string  `json:"buyer"`
	Seller    string  `json:"seller"`
	Message   string  `json:"message"`
	Transfer  float64 `json:"transfer"`
	Signature string  `json:"signature"`
}

// Equal reports whether two transactions serialize identically. The
// mempool and Chain.add use byte-equal serialisation to recognise
// that a pending transaction has been mined.
func (t Transaction) Equal(other Transaction) bool {
	return t.Sender == other.Sender &&
		t.Buyer == other.Buyer &&
		t.Seller == other.Seller &&
		t.Message == other.Message &&
		t.Transfer == other.Transfer &&
		t.Signature == other.Signature
}

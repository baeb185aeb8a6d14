package rpc

import "sort"

// Transfer is one entry of get_transfers.
type Transfer struct {
	TxID          string `json:"txid"`
	Type          string `json:"type"`
	Address       string `json:"address"`
	PaymentID     string `json:"payment_id"`
	Amount        uint64 `json:"amount"`
	Fee           uint64 `json:"fee"`
	Height        uint64 `json:"height"`
	Timestamp     int64  `json:"timestamp"`
	Confirmations uint64 `json:"confirmations"`
	UnlockTime    uint64 `json:"unlock_time"`
	Note          string `json:"note"`
}

// Transfers groups wallet history by category.
type Transfers struct {
	In      []Transfer `json:"in"`
	Out     []Transfer `json:"out"`
	Pending []Transfer `json:"pending"`
	Failed  []Transfer `json:"failed"`
	Pool    []Transfer `json:"pool"`
}

// LedgerEntry is a transfer with the running balance after it.
type LedgerEntry struct {
	TxID      string `json:"txid"`
	Category  string `json:"category"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Total     int64  `json:"total"`
}

// Ledger orders every transfer by timestamp and keeps a running total:
// incoming adds the amount, outgoing subtracts amount and fee, other
// categories leave it unchanged. A txid seen in several categories is kept
// once, with the last category in in, out, pending, failed, pool order.
func (t Transfers) Ledger() []LedgerEntry {
	type tagged struct {
		cat string
		tx  Transfer
	}
	byID := map[string]int{}
	var all []tagged
	add := func(cat string, list []Transfer) {
		for _, tx := range list {
			if i, ok := byID[tx.TxID]; ok {
				all[i] = tagged{cat, tx}
				continue
			}
			byID[tx.TxID] = len(all)
			all = append(all, tagged{cat, tx})
		}
	}
	add("in", t.In)
	add("out", t.Out)
	add("pending", t.Pending)
	add("failed", t.Failed)
	add("pool", t.Pool)

	sort.SliceStable(all, func(i, j int) bool { return all[i].tx.Timestamp < all[j].tx.Timestamp })

	out := make([]LedgerEntry, 0, len(all))
	var total int64
	for _, e := range all {
		switch e.cat {
		case "in":
			total += int64(e.tx.Amount)
		case "out":
			total -= int64(e.tx.Amount) + int64(e.tx.Fee)
		}
		out = append(out, LedgerEntry{
			TxID:      e.tx.TxID,
			Category:  e.cat,
			Amount:    e.tx.Amount,
			Timestamp: e.tx.Timestamp,
			Total:     total,
		})
	}
	return out
}

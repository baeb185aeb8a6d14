package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidPaymentID means the payment ID is not 16 or 32 hex characters.
	ErrInvalidPaymentID = errors.New("invalid payment id")
	// ErrInvalidAddress means the destination is empty or not base58.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidCategory means the transfer category is unknown.
	ErrInvalidCategory = errors.New("invalid transfer category")
)

// Category selects how Transfer moves funds.
type Category string

const (
	CategoryTransfer Category = "transfer"
	CategorySweepAll Category = "sweep_all"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Wallet wraps one wallet RPC endpoint.
type Wallet struct {
	c               *Client
	probeTimeout    time.Duration
	transferTimeout time.Duration
}

// NewWallet returns a Wallet for cfg.
func NewWallet(cfg Config) *Wallet {
	cfg.applyDefaults()
	return &Wallet{
		c:               NewClient(cfg),
		probeTimeout:    cfg.ProbeTimeout,
		transferTimeout: cfg.TransferTimeout,
	}
}

// Client exposes the underlying JSON-RPC client.
func (w *Wallet) Client() *Client { return w.c }

// Connected reports whether the wallet answers get_height. It never returns
// an error: transport failures and RPC errors both mean false.
func (w *Wallet) Connected(ctx context.Context) bool {
	var res struct {
		Height *uint64 `json:"height"`
	}
	if err := w.c.call(ctx, w.probeTimeout, "get_height", nil, &res); err != nil {
		return false
	}
	return res.Height != nil
}

// Height returns the wallet's current chain height.
func (w *Wallet) Height(ctx context.Context) (uint64, error) {
	var res struct {
		Height uint64 `json:"height"`
	}
	if err := w.c.Call(ctx, "get_height", nil, &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}

func (w *Wallet) queryKey(ctx context.Context, keyType, field string) (string, error) {
	var res map[string]string
	if err := w.c.Call(ctx, "query_key", map[string]string{"key_type": keyType}, &res); err != nil {
		return "", err
	}
	v, ok := res[field]
	if !ok {
		return "", fmt.Errorf("query_key %s: missing %s in result", keyType, field)
	}
	return v, nil
}

func (w *Wallet) PublicSpendKey(ctx context.Context) (string, error) {
	return w.queryKey(ctx, "public_spend_key", "public_spend_key")
}

func (w *Wallet) SecretSpendKey(ctx context.Context) (string, error) {
	return w.queryKey(ctx, "secret_spend_key", "private_spend_key")
}

func (w *Wallet) PublicViewKey(ctx context.Context) (string, error) {
	return w.queryKey(ctx, "public_view_key", "public_view_key")
}

func (w *Wallet) SecretViewKey(ctx context.Context) (string, error) {
	return w.queryKey(ctx, "secret_view_key", "private_view_key")
}

func (w *Wallet) MnemonicSeed(ctx context.Context) (string, error) {
	return w.queryKey(ctx, "mnemonic", "mnemonic")
}

// Address returns the primary address of account.
func (w *Wallet) Address(ctx context.Context, account uint32) (string, error) {
	var res struct {
		Address string `json:"address"`
	}
	if err := w.c.Call(ctx, "get_address", map[string]any{"account_index": account}, &res); err != nil {
		return "", err
	}
	return res.Address, nil
}

// NewAddress creates a subaddress and returns its index and address.
func (w *Wallet) NewAddress(ctx context.Context, account uint32, label string) (uint32, string, error) {
	params := map[string]any{"account_index": account}
	if label != "" {
		params["label"] = label
	}
	var res struct {
		AddressIndex uint32 `json:"address_index"`
		Address      string `json:"address"`
	}
	if err := w.c.Call(ctx, "create_address", params, &res); err != nil {
		return 0, "", err
	}
	return res.AddressIndex, res.Address, nil
}

// IntegratedAddress folds paymentID into address.
func (w *Wallet) IntegratedAddress(ctx context.Context, address, paymentID string) (string, error) {
	if !ValidPaymentID(paymentID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentID, paymentID)
	}
	var res struct {
		IntegratedAddress string `json:"integrated_address"`
	}
	params := map[string]string{"standard_address": address, "payment_id": paymentID}
	if err := w.c.Call(ctx, "make_integrated_address", params, &res); err != nil {
		return "", err
	}
	return res.IntegratedAddress, nil
}

type validation struct {
	Valid      bool `json:"valid"`
	Integrated bool `json:"integrated"`
}

func (w *Wallet) validate(ctx context.Context, address string) (validation, error) {
	var res validation
	err := w.c.Call(ctx, "validate_address", map[string]string{"address": address}, &res)
	return res, err
}

// ValidateAddress asks the wallet whether address is well formed.
func (w *Wallet) ValidateAddress(ctx context.Context, address string) (bool, error) {
	v, err := w.validate(ctx, address)
	return v.Valid, err
}

// IsIntegrated reports whether address already carries a payment ID.
func (w *Wallet) IsIntegrated(ctx context.Context, address string) (bool, error) {
	v, err := w.validate(ctx, address)
	return v.Integrated, err
}

// Balances returns the total and unlocked balance of account in atomic units.
func (w *Wallet) Balances(ctx context.Context, account uint32) (uint64, uint64, error) {
	var res struct {
		Balance         uint64 `json:"balance"`
		UnlockedBalance uint64 `json:"unlocked_balance"`
	}
	if err := w.c.Call(ctx, "get_balance", map[string]any{"account_index": account}, &res); err != nil {
		return 0, 0, err
	}
	return res.Balance, res.UnlockedBalance, nil
}

// Transfers returns every category of history for account in one call.
func (w *Wallet) Transfers(ctx context.Context, account uint32) (Transfers, error) {
	params := map[string]any{
		"account_index": account,
		"in":            true,
		"out":           true,
		"pending":       true,
		"failed":        true,
		"pool":          true,
	}
	var res Transfers
	if err := w.c.Call(ctx, "get_transfers", params, &res); err != nil {
		return Transfers{}, err
	}
	return res, nil
}

// TransferRequest describes an outgoing payment.
type TransferRequest struct {
	Destination string
	// Amount is in atomic units and ignored for CategorySweepAll.
	Amount    uint64
	PaymentID string
	Category  Category
	Account   uint32
}

// TransferResult lists the submitted transactions. transfer yields one
// entry, sweep_all may yield several.
type TransferResult struct {
	TxHashes []string `json:"tx_hash_list"`
	Amounts  []uint64 `json:"amount_list"`
	Fees     []uint64 `json:"fee_list"`
}

// Validate checks the request without contacting the wallet.
func (r TransferRequest) Validate() error {
	if !plausibleAddress(r.Destination) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, r.Destination)
	}
	switch r.Category {
	case CategorySweepAll:
	case CategoryTransfer, "":
		if r.Amount == 0 {
			return fmt.Errorf("%w: transfer requires a positive amount", ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCategory, r.Category)
	}
	if r.PaymentID != "" && !ValidPaymentID(r.PaymentID) {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentID, r.PaymentID)
	}
	return nil
}

// Transfer submits req. For CategoryTransfer a payment ID is folded into the
// destination unless the destination is already integrated. Ring size,
// mixin and priority are fixed at zero.
func (w *Wallet) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if err := req.Validate(); err != nil {
		return TransferResult{}, err
	}

	fixed := map[string]any{
		"account_index":   req.Account,
		"subaddr_indices": []uint32{},
		"mixin":           0,
		"ring_size":       0,
		"priority":        0,
		"unlock_time":     0,
		"get_tx_metadata": false,
		"get_tx_hex":      false,
		"do_not_relay":    false,
	}

	if req.Category == CategorySweepAll {
		fixed["address"] = req.Destination
		fixed["below_amount"] = 0
		fixed["get_tx_keys"] = false
		var res TransferResult
		if err := w.c.call(ctx, w.transferTimeout, "sweep_all", fixed, &res); err != nil {
			return TransferResult{}, err
		}
		return res, nil
	}

	dest := req.Destination
	if req.PaymentID != "" {
		integrated, err := w.IsIntegrated(ctx, dest)
		if err != nil {
			return TransferResult{}, err
		}
		if !integrated {
			if dest, err = w.IntegratedAddress(ctx, dest, req.PaymentID); err != nil {
				return TransferResult{}, err
			}
		}
	}
	fixed["destinations"] = []map[string]any{{"address": dest, "amount": req.Amount}}
	fixed["get_tx_key"] = false

	var res struct {
		TxHash string `json:"tx_hash"`
		Amount uint64 `json:"amount"`
		Fee    uint64 `json:"fee"`
	}
	if err := w.c.call(ctx, w.transferTimeout, "transfer", fixed, &res); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{TxHashes: []string{res.TxHash}, Amounts: []uint64{res.Amount}, Fees: []uint64{res.Fee}}, nil
}

// ValidPaymentID reports whether id is 16 or 32 hexadecimal characters.
func ValidPaymentID(id string) bool {
	if len(id) != 16 && len(id) != 32 {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func plausibleAddress(addr string) bool {
	if addr == "" {
		return false
	}
	for _, r := range addr {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deadswitch/types"
	"deadswitch/vm"
)

// resolveAddress base58 地址原样使用，否则当作标签派生（本地开发用的身份）
func resolveAddress(s string) (types.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Address{}, errors.New("empty address")
	}
	if addr, err := types.ParseAddress(s); err == nil {
		return addr, nil
	}
	return types.LabelAddress(s), nil
}

type CallerFlags struct {
	As string `required:"" help:"Caller identity: base58 address or a local label."`
}

type VaultFlags struct {
	Vault string `required:"" help:"Vault address (base58)."`
}

func (f VaultFlags) vault() (types.Address, error) {
	addr, err := types.ParseAddress(f.Vault)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid vault address: %w", err)
	}
	return addr, nil
}

// submit 打开节点、执行一笔操作并打印回执
// 业务失败时回执照样打印，同时返回 *vm.VaultError
func (a *App) submit(as string, vault types.Address, c vm.Content) (*vm.Receipt, error) {
	caller, err := resolveAddress(as)
	if err != nil {
		return nil, err
	}
	n, err := a.open(nil)
	if err != nil {
		return nil, err
	}
	defer n.Close()

	tx := &vm.Tx{
		TxID:    uuid.NewString(),
		Caller:  caller,
		Vault:   vault,
		Content: c,
	}
	rc, err := n.exec.Execute(tx)
	if rc != nil {
		a.printReceipt(rc)
	}
	return rc, err
}

func (a *App) printReceipt(rc *vm.Receipt) {
	a.printf("tx      %s\n", rc.TxID)
	a.printf("kind    %s\n", rc.Kind)
	a.printf("vault   %s\n", rc.Vault)
	a.printf("status  %s\n", rc.Status)
	if rc.Code != "" {
		a.printf("code    %s\n", rc.Code)
	}
	if rc.BountyPaid > 0 {
		a.printf("bounty  %s\n", types.FormatNative(rc.BountyPaid))
	}
	for _, l := range rc.Logs {
		a.printf("log     %s\n", l)
	}
}

// ---------------- vault 操作 ----------------

type InitCmd struct {
	CallerFlags
	Seed         uint64        `required:"" help:"Per-owner seed used to derive the vault address."`
	Recipient    string        `required:"" help:"Who receives the vault on release."`
	Interval     time.Duration `required:"" help:"Check-in interval, e.g. 720h."`
	Payload      string        `help:"Reference to the off-ledger payload (max 64 bytes)."`
	EncryptedKey string        `name:"encrypted-key" help:"Encrypted decryption key (max 128 bytes)."`
	Name         string        `help:"Display name (max 32 bytes)."`
	Bounty       string        `default:"0" help:"Native amount paid to whoever triggers the release."`
	Lock         string        `default:"0" help:"Native amount locked for the recipient."`
}

func (c *InitCmd) Run(a *App) error {
	recipient, err := resolveAddress(c.Recipient)
	if err != nil {
		return err
	}
	bounty, err := types.ParseNative(c.Bounty)
	if err != nil {
		return fmt.Errorf("bounty: %w", err)
	}
	lock, err := types.ParseNative(c.Lock)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	_, err = a.submit(c.As, types.Address{}, vm.InitializeVault{
		Seed:               c.Seed,
		PayloadReference:   c.Payload,
		EncryptedKey:       c.EncryptedKey,
		Recipient:          recipient,
		TimeInterval:       int64(c.Interval / time.Second),
		Bounty:             bounty,
		Name:               c.Name,
		LockedNativeAmount: lock,
	})
	return err
}

type PingCmd struct {
	CallerFlags
	VaultFlags
}

func (c *PingCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.Ping{})
	return err
}

type SetDelegateCmd struct {
	CallerFlags
	VaultFlags
	Delegate string `help:"Delegate address or label; omit to clear."`
}

func (c *SetDelegateCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	var content vm.SetDelegate
	if c.Delegate != "" {
		d, err := resolveAddress(c.Delegate)
		if err != nil {
			return err
		}
		content.Delegate = &d
	}
	_, err = a.submit(c.As, vault, content)
	return err
}

// UpdateCmd 空值表示不修改
type UpdateCmd struct {
	CallerFlags
	VaultFlags
	Recipient string        `help:"New recipient."`
	Interval  time.Duration `help:"New check-in interval."`
	Name      string        `help:"New display name."`
}

func (c *UpdateCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	var content vm.UpdateVault
	if c.Recipient != "" {
		r, err := resolveAddress(c.Recipient)
		if err != nil {
			return err
		}
		content.Recipient = &r
	}
	if c.Interval != 0 {
		secs := int64(c.Interval / time.Second)
		content.TimeInterval = &secs
	}
	if c.Name != "" {
		content.Name = &c.Name
	}
	_, err = a.submit(c.As, vault, content)
	return err
}

type TopUpCmd struct {
	CallerFlags
	VaultFlags
	Amount string `arg:"" help:"Native amount to add to the bounty."`
}

func (c *TopUpCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	amount, err := types.ParseNative(c.Amount)
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.TopUpBounty{Amount: amount})
	return err
}

type LockAssetCmd struct {
	CallerFlags
	VaultFlags
	Mint     string `required:"" help:"Asset mint address or label."`
	Amount   string `arg:"" help:"Amount in display units."`
	Decimals int32  `default:"0" help:"Decimals of the asset mint."`
}

func (c *LockAssetCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	mint, err := resolveAddress(c.Mint)
	if err != nil {
		return err
	}
	amount, err := types.ParseUnits(c.Amount, c.Decimals)
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.LockAsset{Mint: mint, Amount: amount})
	return err
}

type TriggerCmd struct {
	CallerFlags
	VaultFlags
}

func (c *TriggerCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.TriggerRelease{})
	return err
}

type ClaimNativeCmd struct {
	CallerFlags
	VaultFlags
}

func (c *ClaimNativeCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.ClaimNative{})
	return err
}

type ClaimAssetCmd struct {
	CallerFlags
	VaultFlags
	Mint string `required:"" help:"Asset mint address or label."`
}

func (c *ClaimAssetCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	mint, err := resolveAddress(c.Mint)
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.ClaimAsset{Mint: mint})
	return err
}

type CloseCmd struct {
	CallerFlags
	VaultFlags
}

func (c *CloseCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.CloseVault{})
	return err
}

type ClaimAndCloseCmd struct {
	CallerFlags
	VaultFlags
}

func (c *ClaimAndCloseCmd) Run(a *App) error {
	vault, err := c.vault()
	if err != nil {
		return err
	}
	_, err = a.submit(c.As, vault, vm.ClaimAndClose{})
	return err
}

// ---------------- 查询 ----------------

type ShowCmd struct {
	VaultFlags
	JSON bool `name:"json" help:"Print as JSON."`
}

func (c *ShowCmd) Run(a *App) error {
	addr, err := c.vault()
	if err != nil {
		return err
	}
	n, err := a.open(nil)
	if err != nil {
		return err
	}
	defer n.Close()

	v, err := n.query.Get(addr)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("vault %s not found", addr)
	}
	st := vm.Status(v, vm.SystemClock.Now())
	if c.JSON {
		return a.printJSON(struct {
			Address types.Address  `json:"address"`
			Vault   *types.Vault   `json:"vault"`
			Status  vm.VaultStatus `json:"status"`
		}{addr, v, st})
	}
	a.printVault(addr, v, st)
	return nil
}

func (a *App) printVault(addr types.Address, v *types.Vault, st vm.VaultStatus) {
	a.printf("address    %s\n", addr)
	a.printf("name       %s\n", v.Name)
	a.printf("owner      %s\n", v.Owner)
	a.printf("recipient  %s\n", v.Recipient)
	if v.Delegate != nil {
		a.printf("delegate   %s\n", *v.Delegate)
	}
	a.printf("interval   %s\n", time.Duration(v.TimeInterval)*time.Second)
	a.printf("check-in   %s\n", time.Unix(v.LastCheckIn, 0).UTC().Format(time.RFC3339))
	switch {
	case st.Released:
		a.printf("state      released\n")
	case st.Overflow:
		a.printf("state      no expiry (interval overflows)\n")
	case st.Expired:
		a.printf("state      expired at %s\n", time.Unix(st.Expiry, 0).UTC().Format(time.RFC3339))
	default:
		a.printf("state      armed, %s left\n", time.Duration(st.Remaining)*time.Second)
	}
	a.printf("bounty     %s\n", types.FormatNative(v.Bounty))
	a.printf("locked     %s\n", types.FormatNative(v.LockedNativeAmount))
	if v.AssetMint != nil {
		a.printf("asset      %s x %d\n", *v.AssetMint, v.LockedAssetAmount)
	}
}

type ListCmd struct {
	Owner     string `help:"Only vaults owned by this address."`
	Recipient string `help:"Only vaults for this recipient."`
	Name      string `help:"Only vaults whose name starts with this prefix."`
}

func (c *ListCmd) Run(a *App) error {
	n, err := a.open(nil)
	if err != nil {
		return err
	}
	defer n.Close()

	var (
		entries []vm.VaultEntry
		who     types.Address
	)
	switch {
	case c.Owner != "":
		if who, err = resolveAddress(c.Owner); err != nil {
			return err
		}
		entries, err = n.query.ByOwner(who)
	case c.Recipient != "":
		if who, err = resolveAddress(c.Recipient); err != nil {
			return err
		}
		entries, err = n.query.ByRecipient(who)
	case c.Name != "":
		entries, err = n.query.ByName(c.Name)
	default:
		entries, err = n.query.List()
	}
	if err != nil {
		return err
	}

	now := vm.SystemClock.Now()
	for _, e := range entries {
		st := vm.Status(e.Vault, now)
		state := "armed"
		switch {
		case st.Released:
			state = "released"
		case st.Overflow:
			state = "no-expiry"
		case st.Expired:
			state = "expired"
		}
		a.printf("%-44s  %-9s  %-32s  bounty=%s\n", e.Address, state, e.Vault.Name, types.FormatNative(e.Vault.Bounty))
	}
	a.printf("%d vault(s)\n", len(entries))
	return nil
}

type AddressCmd struct {
	Owner string `required:"" help:"Owner address or label."`
	Seed  uint64 `required:"" help:"Vault seed."`
}

func (c *AddressCmd) Run(a *App) error {
	owner, err := resolveAddress(c.Owner)
	if err != nil {
		return err
	}
	addr, bump, err := types.DeriveVaultAddress(owner, c.Seed)
	if err != nil {
		return err
	}
	a.printf("%s bump=%d\n", addr, bump)
	return nil
}

type BalanceCmd struct {
	Address string `arg:"" help:"Address or label."`
}

func (c *BalanceCmd) Run(a *App) error {
	addr, err := resolveAddress(c.Address)
	if err != nil {
		return err
	}
	n, err := a.open(nil)
	if err != nil {
		return err
	}
	defer n.Close()

	native, err := n.exec.NativeBalance(addr)
	if err != nil {
		return err
	}
	accounts, err := n.exec.AssetAccounts(addr)
	if err != nil {
		return err
	}
	a.printf("address  %s\n", addr)
	a.printf("native   %s\n", types.FormatNative(native))
	for _, acc := range accounts {
		a.printf("asset    %s  %d\n", acc.Mint, acc.Amount)
	}
	return nil
}

type ReceiptCmd struct {
	TxID string `arg:"" name:"tx-id" help:"Transaction id."`
}

func (c *ReceiptCmd) Run(a *App) error {
	n, err := a.open(nil)
	if err != nil {
		return err
	}
	defer n.Close()

	rc, err := n.exec.GetReceipt(c.TxID)
	if err != nil {
		return err
	}
	return a.printJSON(rc)
}

func (a *App) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---------------- 本地开发用 ----------------

type AirdropCmd struct {
	To     string `arg:"" help:"Address or label to credit."`
	Amount string `arg:"" help:"Native amount."`
}

func (c *AirdropCmd) Run(a *App) error {
	to, err := resolveAddress(c.To)
	if err != nil {
		return err
	}
	amount, err := types.ParseNative(c.Amount)
	if err != nil {
		return err
	}
	n, err := a.open(nil)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.exec.Airdrop(to, amount); err != nil {
		return err
	}
	a.printf("credited %s to %s\n", types.FormatNative(amount), to)
	return nil
}

type MintAssetCmd struct {
	To       string `arg:"" help:"Owner address or label."`
	Mint     string `required:"" help:"Asset mint address or label."`
	Amount   string `arg:"" help:"Amount in display units."`
	Decimals int32  `default:"0" help:"Decimals of the asset mint."`
}

func (c *MintAssetCmd) Run(a *App) error {
	to, err := resolveAddress(c.To)
	if err != nil {
		return err
	}
	mint, err := resolveAddress(c.Mint)
	if err != nil {
		return err
	}
	amount, err := types.ParseUnits(c.Amount, c.Decimals)
	if err != nil {
		return err
	}
	n, err := a.open(nil)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.exec.MintAsset(to, mint, amount); err != nil {
		return err
	}
	a.printf("minted %d of %s to %s\n", amount, mint, to)
	return nil
}

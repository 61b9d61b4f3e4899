package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"deadswitch/config"
	"deadswitch/logs"
	"deadswitch/stats"
)

// CLI 全局参数 + 子命令
type CLI struct {
	Config   string `short:"c" help:"Configuration file path (YAML)." type:"path"`
	DataDir  string `help:"Override the database directory."`
	Backend  string `help:"Override the storage backend (badger|bolt)."`
	LogLevel string `help:"Log level (trace|debug|info|warn|error)." default:"warn" env:"DEADSWITCH_LOG_LEVEL"`

	Init          InitCmd          `cmd:"" help:"Create a vault owned by --as."`
	Ping          PingCmd          `cmd:"" help:"Check in and reset the vault timer."`
	SetDelegate   SetDelegateCmd   `cmd:"" name:"set-delegate" help:"Set or clear the vault delegate."`
	Update        UpdateCmd        `cmd:"" help:"Change recipient, interval or name."`
	TopUp         TopUpCmd         `cmd:"" name:"top-up" help:"Add native funds to the release bounty."`
	LockAsset     LockAssetCmd     `cmd:"" name:"lock-asset" help:"Lock an asset balance in the vault."`
	Trigger       TriggerCmd       `cmd:"" help:"Release an expired vault and collect the bounty."`
	ClaimNative   ClaimNativeCmd   `cmd:"" name:"claim-native" help:"Recipient claims the locked native amount."`
	ClaimAsset    ClaimAssetCmd    `cmd:"" name:"claim-asset" help:"Recipient claims the locked asset."`
	Close         CloseCmd         `cmd:"" help:"Owner closes the vault and recovers every balance."`
	ClaimAndClose ClaimAndCloseCmd `cmd:"" name:"claim-and-close" help:"Recipient takes everything and closes the vault."`

	Show    ShowCmd    `cmd:"" help:"Show a vault and its timer status."`
	List    ListCmd    `cmd:"" help:"List vaults."`
	Address AddressCmd `cmd:"" help:"Derive a vault address from owner and seed."`
	Balance BalanceCmd `cmd:"" help:"Show native and asset balances."`
	Receipt ReceiptCmd `cmd:"" help:"Show the stored receipt of a transaction."`

	Airdrop   AirdropCmd   `cmd:"" help:"Dev faucet: credit native funds."`
	MintAsset MintAssetCmd `cmd:"" name:"mint-asset" help:"Dev faucet: mint an asset balance."`

	Keeper KeeperCmd `cmd:"" help:"Scan for expiring vaults and release expired ones."`
}

// App 传给每个子命令的运行环境
type App struct {
	cli *CLI
	out io.Writer
}

// loadConfig 配置文件 <- 环境变量 <- 命令行
func (a *App) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.cli.Config)
	if err != nil {
		return nil, err
	}
	if a.cli.DataDir != "" {
		cfg.Database.Path = a.cli.DataDir
	}
	if a.cli.Backend != "" {
		cfg.Database.Backend = a.cli.Backend
	}
	if a.cli.LogLevel != "" {
		cfg.Log.Level = a.cli.LogLevel
	}
	level, err := logs.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logs.SetLevel(level)
	return cfg, cfg.Validate()
}

func (a *App) open(metrics *stats.Recorder) (*node, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return openNode(cfg, metrics)
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("deadswitch"),
		kong.Description("Dead man's switch vaults: check in, or your recipient gets the keys."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&App{cli: &cli, out: os.Stdout})
	ctx.FatalIfErrorf(err)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountypot/internal/app"
	"bountypot/internal/config"
	"bountypot/internal/db"
	"bountypot/internal/domain"
	"bountypot/internal/engine"
	"bountypot/internal/migrate"
	"bountypot/internal/money"
	"bountypot/internal/repo"
	"bountypot/internal/server"
	"bountypot/internal/vault"
)

var rootCmd = &cobra.Command{
	Use:   "bp",
	Short: "BountyPot CLI",
	Long: `BountyPot runs two fund-custody games over one audited ledger.
- Workspace: your .bountypot directory with the SQLite ledger; parameters are
  fixed at 'bp init' and stored next to the funds they govern.
- Lottery: players stake multiples of the minimum fee into a pooled pot;
  after the round duration the owner draws a stake-weighted winner and the
  pot splits between winner and owner fee.
- Marketplace: employers escrow a bounty when posting a gig; registered
  workers with the matching skill apply, submit work, and get paid when the
  employer approves. Gigs go open -> applied -> submitted -> paid.
- Ledger: every movement is a transfer receipt between accounts; custody
  accounts (round:N, gig:N) hold funds in flight. 'bp log tail' shows the
  audit trail.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOUNTYPOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("principal", "local-user", "acting principal")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("principal", rootCmd.PersistentFlags().Lookup("principal"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(lotteryCmd())
	rootCmd.AddCommand(marketCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		Long:  "Creates the ledger, fixes the lottery parameters from bountypot.yml (or defaults), sets the owner, and opens round 1. Runs once per workspace.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if owner == "" {
				owner = viper.GetString("principal")
			}
			cfg, err := app.SeedConfig(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if err := e.Init(cmd.Context(), owner); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"owner": owner, "config": cfg})
			}
			fmt.Printf("Initialized workspace at %s (owner=%s, min_entry_fee=%s, round_duration=%s)\n",
				workspace, owner, cfg.Lottery.MinEntryFee, cfg.Lottery.RoundDuration)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner principal (defaults to --principal)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook stored in the ledger at init time: minimum entry fee, round duration, unique-player floor, and the owner fee in basis points.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configGenerateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				filePath = config.Path(viper.GetString("workspace"))
			}
			_, err := config.FromFile(filePath)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (default: workspace bountypot.yml)")
	return cmd
}

func configGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print the default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	}
	return cmd
}

func lotteryCmd() *cobra.Command {
	lot := &cobra.Command{
		Use:   "lottery",
		Short: "Pooled-stake lottery",
		Long:  "Players stake multiples of the minimum entry fee into the current round's pot. When the round duration has passed and enough unique players joined, the owner draws a stake-weighted winner.",
	}
	lot.AddCommand(lotteryEnterCmd())
	lot.AddCommand(lotteryStatusCmd())
	lot.AddCommand(lotteryEntriesCmd())
	lot.AddCommand(lotteryRoundsCmd())
	lot.AddCommand(lotteryDrawCmd())
	lot.AddCommand(lotteryPauseCmd())
	lot.AddCommand(lotteryUnpauseCmd())
	return lot
}

func lotteryEnterCmd() *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   "enter",
		Short: "Stake funds on the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := money.Parse(value)
			if err != nil {
				return fmt.Errorf("--value: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.Enter(ctx, viper.GetString("principal"), v)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("Round %d: %s now holds %d entries (%s staked)\n",
					entry.RoundID, entry.Player, entry.Count, money.Format(entry.Value))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "amount to stake, e.g. 0.03")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func lotteryStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rd, err := e.CurrentRound(ctx)
				if err != nil {
					return err
				}
				paused, err := e.IsPaused(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"round":  rd,
						"paused": paused,
					})
				}
				fmt.Printf("Round %d (%s)\n", rd.ID, rd.Status)
				fmt.Printf("  opened:         %s\n", rd.OpenedAt)
				fmt.Printf("  pot:            %s\n", money.Format(rd.Pot))
				fmt.Printf("  entries:        %d from %d players\n", rd.TotalEntries, rd.UniquePlayers)
				fmt.Printf("  min entry fee:  %s\n", e.Config.Lottery.MinEntryFee)
				fmt.Printf("  round duration: %s\n", e.Config.Lottery.RoundDuration)
				fmt.Printf("  paused:         %v\n", paused)
				return nil
			})
		},
	}
	return cmd
}

func lotteryEntriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries [player]",
		Short: "Show a player's stake in the current round",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			player := viper.GetString("principal")
			if len(args) == 1 {
				player = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rd, err := e.CurrentRound(ctx)
				if err != nil {
					return err
				}
				entry, err := e.Repo.PlayerEntry(ctx, rd.ID, player)
				if errors.Is(err, repo.ErrNotFound) {
					entry = domain.Entry{RoundID: rd.ID, Player: player}
				} else if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("Round %d: %s holds %d entries (%s staked)\n",
					entry.RoundID, entry.Player, entry.Count, money.Format(entry.Value))
				return nil
			})
		},
	}
	return cmd
}

func lotteryRoundsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "List round history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rounds, err := e.ListRounds(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rounds)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Pot", "Players", "Winner", "Payout", "Fee"})
				for _, rd := range rounds {
					winner, payout, fee := "", "", ""
					if rd.Winner != nil {
						winner = *rd.Winner
					}
					if rd.WinnerPayout != nil {
						payout = money.Format(*rd.WinnerPayout)
					}
					if rd.OwnerFee != nil {
						fee = money.Format(*rd.OwnerFee)
					}
					tw.AppendRow(table.Row{rd.ID, rd.Status, money.Format(rd.Pot), rd.UniquePlayers, winner, payout, fee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of rounds")
	return cmd
}

func lotteryDrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Resolve the current round and pay out (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rd, err := e.SelectWinner(ctx, viper.GetString("principal"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rd)
				}
				winner := ""
				if rd.Winner != nil {
					winner = *rd.Winner
				}
				payout, fee := int64(0), int64(0)
				if rd.WinnerPayout != nil {
					payout = *rd.WinnerPayout
				}
				if rd.OwnerFee != nil {
					fee = *rd.OwnerFee
				}
				fmt.Printf("Round %d resolved: winner=%s payout=%s owner_fee=%s\n",
					rd.ID, winner, money.Format(payout), money.Format(fee))
				return nil
			})
		},
	}
	return cmd
}

func lotteryPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause entries (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Pause(ctx, viper.GetString("principal"))
			})
		},
	}
	return cmd
}

func lotteryUnpauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpause",
		Short: "Resume entries (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Unpause(ctx, viper.GetString("principal"))
			})
		},
	}
	return cmd
}

func marketCmd() *cobra.Command {
	mkt := &cobra.Command{
		Use:   "market",
		Short: "Skills marketplace",
		Long:  "Employers escrow a bounty when posting a gig. Registered workers with the matching skill apply, submit work, and get paid on employer approval.",
	}
	mkt.AddCommand(marketRegisterCmd())
	mkt.AddCommand(marketPostCmd())
	mkt.AddCommand(marketGigsCmd())
	mkt.AddCommand(marketGigCmd())
	mkt.AddCommand(marketWorkersCmd())
	mkt.AddCommand(marketApplyCmd())
	mkt.AddCommand(marketSubmitCmd())
	mkt.AddCommand(marketApproveCmd())
	return mkt
}

func marketRegisterCmd() *cobra.Command {
	var skill string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register as a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.RegisterWorker(ctx, viper.GetString("principal"), skill)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "worker skill")
	_ = cmd.MarkFlagRequired("skill")
	return cmd
}

func marketPostCmd() *cobra.Command {
	var description, skill, bounty string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a gig and escrow its bounty",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := money.Parse(bounty)
			if err != nil {
				return fmt.Errorf("--bounty: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.PostGig(ctx, viper.GetString("principal"), description, skill, b)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "gig description")
	cmd.Flags().StringVar(&skill, "skill", "", "required skill")
	cmd.Flags().StringVar(&bounty, "bounty", "", "bounty amount, e.g. 0.1")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("skill")
	_ = cmd.MarkFlagRequired("bounty")
	return cmd
}

func marketGigsCmd() *cobra.Command {
	var status string
	var n int
	cmd := &cobra.Command{
		Use:   "gigs",
		Short: "List gigs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				gigs, err := e.Repo.ListGigs(ctx, status, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(gigs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Employer", "Skill", "Bounty", "Status", "Worker"})
				for _, g := range gigs {
					worker := ""
					if g.AssignedWorker != nil {
						worker = *g.AssignedWorker
					}
					tw.AppendRow(table.Row{g.ID, g.Employer, g.RequiredSkill, money.Format(g.Bounty), g.Status, worker})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (open, applied, submitted, paid)")
	cmd.Flags().IntVar(&n, "n", 50, "number of gigs")
	return cmd
}

func marketGigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gig <id>",
		Short: "Show a gig with its applicants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gig id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.GetGig(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	return cmd
}

func marketWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListWorkers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func marketApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <gig-id>",
		Short: "Apply for a gig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gig id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.ApplyForGig(ctx, viper.GetString("principal"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	return cmd
}

func marketSubmitCmd() *cobra.Command {
	var uri string
	cmd := &cobra.Command{
		Use:   "submit <gig-id>",
		Short: "Submit completed work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gig id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.SubmitWork(ctx, viper.GetString("principal"), id, uri)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "submission URI")
	_ = cmd.MarkFlagRequired("uri")
	return cmd
}

func marketApproveCmd() *cobra.Command {
	var worker string
	cmd := &cobra.Command{
		Use:   "approve <gig-id>",
		Short: "Approve submitted work and release the bounty (employer only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid gig id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.ApproveAndPay(ctx, viper.GetString("principal"), id, worker)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "worker principal to pay")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func ledgerCmd() *cobra.Command {
	led := &cobra.Command{
		Use:   "ledger",
		Short: "Accounts and transfers",
	}
	led.AddCommand(ledgerDepositCmd())
	led.AddCommand(ledgerBalanceCmd())
	led.AddCommand(ledgerTransfersCmd())
	return led
}

func ledgerDepositCmd() *cobra.Command {
	var to, amount string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Credit a principal's account (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := money.Parse(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Deposit(ctx, viper.GetString("principal"), to, v); err != nil {
					return err
				}
				balance, err := e.Balance(ctx, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"principal": to, "balance": money.Format(balance)})
				}
				fmt.Printf("%s balance: %s\n", to, money.Format(balance))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "principal to credit")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 1.5")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func ledgerBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [principal]",
		Short: "Show an account balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal := viper.GetString("principal")
			if len(args) == 1 {
				principal = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				balance, err := e.Balance(ctx, principal)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"principal": principal, "balance": money.Format(balance)})
				}
				fmt.Printf("%s balance: %s\n", principal, money.Format(balance))
				return nil
			})
		},
	}
	return cmd
}

func ledgerTransfersCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "List transfer receipts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Vault.ListTransfers(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "From", "To", "Amount", "Reason"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.TS, t.From, t.To, money.Format(t.Amount), t.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of receipts")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var principal, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if principal == "" {
				principal = viper.GetString("principal")
			}
			if vault.Reserved(principal) {
				return fmt.Errorf("principal %q is reserved", principal)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := uuid.NewString()
				rec := domain.APIKey{
					ID:        uuid.NewString(),
					Principal: principal,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := r.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := r.InsertAPIKey(ctx, tx, rec); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": rec.ID, "principal": rec.Principal, "key": key})
				}
				fmt.Printf("Created API key %s for %s\nKey (shown once): %s\n", rec.ID, rec.Principal, key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&principal, "for", "", "principal the key acts as (defaults to --principal)")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var principal string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, principal)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&principal, "for", "", "filter by principal")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit event log",
		Long:  "The diary of everything that happened: entries, draws, escrows, payouts, and pause toggles.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, cfg, err := app.Bootstrap(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("BOUNTYPOT_JWT_SECRET"),
				EnableDevLogin: devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BOUNTYPOT_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving BountyPot API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose the unauthenticated dev login endpoint")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, cfg, err := app.Bootstrap(ctx, workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

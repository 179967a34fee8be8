package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smsrent/backend/internal/app"
	"smsrent/backend/internal/config"
	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/logger"
	"smsrent/backend/internal/service"
)

// coreFactory 按配置创建业务组件，测试中替换为内存版
type coreFactory func(cfg *config.Config, log *zap.Logger) (*app.Core, error)

func defaultCoreFactory(cfg *config.Config, log *zap.Logger) (*app.Core, error) {
	return app.NewCore(cfg, nil, log, nil)
}

type cli struct {
	out        io.Writer
	factory    coreFactory
	configPath string
	logLevel   string
	jsonOutput bool
}

func newRootCmd(out io.Writer, factory coreFactory) *cobra.Command {
	c := &cli{out: out, factory: factory}

	cmd := &cobra.Command{
		Use:           "smsctl",
		Short:         "Rent virtual numbers and read SMS verification codes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "Print JSON instead of tables")

	cmd.AddCommand(
		c.countriesCmd(),
		c.servicesCmd(),
		c.searchCmd(),
		c.buyCmd(),
		c.ordersCmd(),
		c.showCmd(),
		c.releaseCmd(),
		c.syncCmd(),
		c.watchCmd(),
	)
	return cmd
}

// withCore 加载配置并创建业务组件，执行完毕后关闭
func (c *cli) withCore(ctx context.Context, fn func(ctx context.Context, core *app.Core) error) error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger(logger.Config{Level: c.logLevel, Development: true})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	core, err := c.factory(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()
	core.Start(ctx)
	return fn(ctx, core)
}

func (c *cli) countriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List supported countries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCore(cmd.Context(), func(_ context.Context, core *app.Core) error {
				countries := core.Service.Countries()
				if c.jsonOutput {
					return c.printJSON(countries)
				}
				return c.table([]string{"ID", "NAME", "DIAL", "ISO", "PRICE"}, len(countries), func(i int) []string {
					ct := countries[i]
					return []string{strconv.Itoa(ct.ID), ct.Flag + " " + ct.Name, ct.DialCode, ct.ISO, price(ct.Price)}
				})
			})
		},
	}
}

func (c *cli) servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List supported services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCore(cmd.Context(), func(_ context.Context, core *app.Core) error {
				services := core.Service.Services()
				if c.jsonOutput {
					return c.printJSON(services)
				}
				return c.table([]string{"ID", "NAME", "PRICE"}, len(services), func(i int) []string {
					s := services[i]
					return []string{s.ID, s.Name, price(s.Price)}
				})
			})
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		countryID int
		serviceID string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search numbers available for rent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				numbers, err := core.Service.Search(ctx, countryID, serviceID)
				if err != nil {
					return explain(err)
				}
				if c.jsonOutput {
					return c.printJSON(numbers)
				}
				return c.table([]string{"NUMBER", "COUNTRY", "REGION", "TYPE", "PRICE"}, len(numbers), func(i int) []string {
					n := numbers[i]
					return []string{n.PhoneNumber, n.Country, n.Region, n.Type, price(n.Price)}
				})
			})
		},
	}
	cmd.Flags().IntVar(&countryID, "country", domain.GlobalCountryID, "Country ID (0 searches all configured territories)")
	cmd.Flags().StringVar(&serviceID, "service", "", "Service ID, e.g. wa")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func (c *cli) buyCmd() *cobra.Command {
	var input service.BuyOrderInput
	cmd := &cobra.Command{
		Use:   "buy <phone>",
		Short: "Buy a number and create an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.PhoneNumber = args[0]
			return c.withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				order, err := core.Service.Buy(ctx, input)
				if err != nil {
					return explain(err)
				}
				return c.printOrder(core, order)
			})
		},
	}
	cmd.Flags().StringVar(&input.ServiceID, "service", "", "Service ID, e.g. wa")
	cmd.Flags().IntVar(&input.CountryID, "country", domain.GlobalCountryID, "Country ID")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func (c *cli) ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List active orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				orders, err := core.Service.ListActive(ctx)
				if err != nil {
					return err
				}
				return c.printOrders(core, orders)
			})
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|phone>",
		Short: "Show one order with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				order, err := core.Service.Get(ctx, args[0])
				if err != nil {
					return explain(err)
				}
				return c.printOrder(core, order)
			})
		},
	}
}

func (c *cli) releaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <id|phone>",
		Short: "Release a number back to the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				order, err := core.Service.Release(ctx, args[0])
				if err != nil {
					return explain(err)
				}
				if c.jsonOutput {
					return c.printJSON(order.View(core.Service.Now()))
				}
				fmt.Fprintf(c.out, "released %s (%s)\n", order.PhoneNumber, order.ID)
				return nil
			})
		},
	}
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local orders with numbers owned on the provider account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withCore(cmd.Context(), func(ctx context.Context, core *app.Core) error {
				result, err := core.Service.Sync(ctx)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(result)
				}
				if result.Stale {
					fmt.Fprintln(c.out, "provider unavailable, showing local orders")
				} else {
					fmt.Fprintf(c.out, "imported %d, evicted %d\n", result.Imported, result.Evicted)
				}
				return c.printOrders(core, result.Orders)
			})
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id|phone>",
		Short: "Poll an order for SMS until a code arrives or Ctrl-C",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.withCore(ctx, func(ctx context.Context, core *app.Core) error {
				updates := make(chan domain.Order, 16)
				core.Polls.OnUpdate(func(order domain.Order) {
					select {
					case updates <- order:
					default:
					}
				})

				poller, err := core.Service.Watch(ctx, args[0])
				if err != nil {
					return explain(err)
				}
				defer core.Service.Unwatch(poller.OrderID())

				fmt.Fprintf(c.out, "watching %s, press Ctrl-C to stop\n", poller.OrderID())
				seen := make(map[string]struct{})
				for {
					select {
					case order := <-updates:
						c.printNewMessages(order, seen)
					case <-poller.Done():
						order, err := core.Service.Get(context.Background(), poller.OrderID())
						if err == nil {
							c.printNewMessages(*order, seen)
							if order.Code != "" {
								fmt.Fprintf(c.out, "code: %s\n", order.Code)
							}
						}
						fmt.Fprintf(c.out, "poller %s\n", poller.State())
						return nil
					case <-ctx.Done():
						fmt.Fprintln(c.out, "stopped")
						return nil
					}
				}
			})
		},
	}
}

func (c *cli) printNewMessages(order domain.Order, seen map[string]struct{}) {
	for i := len(order.Messages) - 1; i >= 0; i-- {
		m := order.Messages[i]
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		fmt.Fprintf(c.out, "[%s] %s: %s\n", m.Date.Local().Format("15:04:05"), m.Sender, m.Body)
	}
}

func (c *cli) printOrders(core *app.Core, orders []domain.Order) error {
	views := domain.Views(orders, core.Service.Now())
	if c.jsonOutput {
		return c.printJSON(views)
	}
	return c.table([]string{"ID", "NUMBER", "SERVICE", "STATUS", "CODE", "TIME LEFT"}, len(views), func(i int) []string {
		v := views[i]
		return []string{v.ID, v.PhoneNumber, v.ServiceID, string(v.Status), v.Code, v.TimeLeft}
	})
}

func (c *cli) printOrder(core *app.Core, order *domain.Order) error {
	view := order.View(core.Service.Now())
	if c.jsonOutput {
		return c.printJSON(view)
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", view.ID)
	fmt.Fprintf(w, "Number\t%s\n", view.PhoneNumber)
	fmt.Fprintf(w, "Service\t%s\n", view.ServiceID)
	fmt.Fprintf(w, "Country\t%d\n", view.CountryID)
	fmt.Fprintf(w, "Status\t%s\n", view.Status)
	fmt.Fprintf(w, "Code\t%s\n", view.Code)
	fmt.Fprintf(w, "Time left\t%s\n", view.TimeLeft)
	fmt.Fprintf(w, "Messages\t%d\n", len(view.Messages))
	if err := w.Flush(); err != nil {
		return err
	}
	for _, m := range view.Messages {
		fmt.Fprintf(c.out, "  [%s] %s: %s\n", m.Date.Local().Format("2006-01-02 15:04:05"), m.Sender, m.Body)
	}
	return nil
}

func (c *cli) table(header []string, n int, row func(i int) []string) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	writeRow(w, header)
	for i := 0; i < n; i++ {
		writeRow(w, row(i))
	}
	return w.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func price(p float64) string {
	return fmt.Sprintf("$%.2f", p)
}

// explain 为地址登记类错误补充提示
func explain(err error) error {
	var perr *domain.ProviderError
	if errors.As(err, &perr) && perr.Hint != "" {
		return fmt.Errorf("%w\nhint: %s", err, perr.Hint)
	}
	return err
}

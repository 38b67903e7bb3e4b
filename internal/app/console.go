package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cartsync/internal/domain/cart"
	"github.com/xenking/cartsync/internal/domain/product"
	"github.com/xenking/cartsync/internal/engine"
	"github.com/xenking/cartsync/pkg/health"
)

const consoleHelp = `commands:
  show                                print the cart
  add <code> <qty> [sub1 [sub2]]      add a product (optional substitutes at priority 1, 2)
  rm <line-id>                        remove a line
  qty <line-id> <n>                   change a line's quantity
  sub <line-id> <code> <priority>     attach a substitute
  unsub <line-id> <priority>          detach a substitute
  date <YYYY-MM-DD>                   set delivery date (triggers risk re-assessment)
  order <YYYY-MM-DD> [HH:MM HH:MM]    place the order
  refresh                             reload the cart from the portal
  status                              show remote service connectivity
  quit`

// runConsole drives the engine from stdin until EOF, ctx cancellation, or
// the quit command. It is the stand-in for the web UI's order screen: it
// renders from the cache only and re-renders on change notification.
func runConsole(ctx context.Context, lg *zap.Logger, eng *engine.Engine, monitor *health.Monitor) error {
	ctx = zctx.Base(ctx, lg)

	eng.Cache().Subscribe(func() {
		lg.Debug("Cart changed", zap.Int("lines", eng.Cache().Len()))
	})

	fmt.Println(consoleHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := dispatch(ctx, eng, monitor, strings.Fields(line)); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func dispatch(ctx context.Context, eng *engine.Engine, monitor *health.Monitor, args []string) error {
	switch cmd := args[0]; cmd {
	case "help":
		fmt.Println(consoleHelp)
		return nil
	case "show":
		printCart(eng)
		return nil
	case "status":
		failures := monitor.Failures()
		if len(failures) == 0 {
			fmt.Println("all services reachable")
			return nil
		}
		for name, msg := range failures {
			fmt.Printf("%s: %s\n", name, msg)
		}
		return nil
	case "refresh":
		return eng.Refresh(ctx)
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: add <code> <qty> [sub1 [sub2]]")
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad quantity %q", args[2])
		}
		var subs []cart.Substitute
		for i, code := range args[3:] {
			subs = append(subs, cart.Substitute{ProductCode: code, Priority: i + 1})
		}
		// The console has no catalogue access; the snapshot starts as a
		// bare code and is enriched from server responses.
		return eng.AddItem(ctx, product.Product{Code: args[1], Name: args[1]}, qty, subs)
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: rm <line-id>")
		}
		return eng.RemoveItem(ctx, cart.LineID(args[1]))
	case "qty":
		if len(args) != 3 {
			return fmt.Errorf("usage: qty <line-id> <n>")
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad quantity %q", args[2])
		}
		return eng.UpdateQuantity(ctx, cart.LineID(args[1]), qty)
	case "sub":
		if len(args) != 4 {
			return fmt.Errorf("usage: sub <line-id> <code> <priority>")
		}
		prio, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("bad priority %q", args[3])
		}
		return eng.SetSubstitute(ctx, cart.LineID(args[1]), args[2], prio)
	case "unsub":
		if len(args) != 3 {
			return fmt.Errorf("usage: unsub <line-id> <priority>")
		}
		prio, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad priority %q", args[2])
		}
		return eng.ClearSubstitute(ctx, cart.LineID(args[1]), prio)
	case "date":
		if len(args) != 2 {
			return fmt.Errorf("usage: date <YYYY-MM-DD>")
		}
		date, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			return fmt.Errorf("bad date %q", args[1])
		}
		eng.SetDeliveryDate(ctx, date)
		return nil
	case "order":
		if len(args) != 2 && len(args) != 4 {
			return fmt.Errorf("usage: order <YYYY-MM-DD> [HH:MM HH:MM]")
		}
		date, err := time.Parse("2006-01-02", args[1])
		if err != nil {
			return fmt.Errorf("bad date %q", args[1])
		}
		req := cart.OrderRequest{DeliveryDate: date}
		if len(args) == 4 {
			req.WindowStart, req.WindowEnd = args[2], args[3]
		}
		orderID, err := eng.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println("order placed:", orderID)
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func printCart(eng *engine.Engine) {
	lines := eng.Cache().Lines()
	if len(lines) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for i, l := range lines {
		name := l.ProductCode
		if l.Product != nil && l.Product.Name != "" {
			name = l.Product.Name
		}
		risk := "-"
		if l.RiskScore != nil {
			risk = fmt.Sprintf("%.2f", *l.RiskScore)
		}
		fmt.Printf("%2d. [%s] %s x%d risk=%s\n", i+1, l.ID, name, l.Quantity, risk)
		for _, s := range l.Substitutes {
			fmt.Printf("      sub p%d: %s\n", s.Priority, s.ProductCode)
		}
	}
}

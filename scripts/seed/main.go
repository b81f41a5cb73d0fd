package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/app"
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/procurement"
)

var catalog = []inventory.CreateItemInput{
	{Name: "Steel bolt M8", Unit: "pcs", Price: decimal.RequireFromString("0.35"), Quantity: 500},
	{Name: "Hex nut M8", Unit: "pcs", Price: decimal.RequireFromString("0.12"), Quantity: 800},
	{Name: "Copper pipe 15mm", Unit: "m", Price: decimal.RequireFromString("6.40"), Quantity: 120},
	{Name: "Cable tie 200mm", Unit: "pack", Price: decimal.RequireFromString("3.10"), Quantity: 40},
	{Name: "Safety gloves", Unit: "pair", Price: decimal.RequireFromString("4.75"), Quantity: 0},
}

func main() {
	demo := flag.Bool("demo", false, "also post a request, an order and a partial receipt")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	services := app.BuildServices(app.ServiceDeps{Config: cfg, Logger: app.NewLogger(cfg), Pool: pool})

	fmt.Println("→ Seeding catalog...")
	items, err := seedCatalog(ctx, services.Inventory)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	if *demo {
		fmt.Println("→ Seeding demo procurement flow...")
		if err := seedFlow(ctx, services.Procurement, items); err != nil {
			log.Fatalf("seed flow: %v", err)
		}
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// seedCatalog inserts the catalog unless items already exist.
func seedCatalog(ctx context.Context, svc *inventory.Service) ([]inventory.Item, error) {
	existing, total, err := svc.ListItems(ctx, inventory.ItemFilter{Limit: len(catalog)})
	if err != nil {
		return nil, err
	}
	if total > 0 {
		fmt.Printf("  catalog has %d item(s), skipping\n", total)
		return existing, nil
	}
	items := make([]inventory.Item, 0, len(catalog))
	for _, input := range catalog {
		item, err := svc.CreateItem(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", input.Name, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func seedFlow(ctx context.Context, svc *procurement.Service, items []inventory.Item) error {
	if len(items) < 2 {
		return fmt.Errorf("need at least 2 catalog items, have %d", len(items))
	}
	pr, err := svc.CreateRequest(ctx, []procurement.LineInput{
		{ItemID: items[0].ID, Quantity: 100},
		{ItemID: items[1].ID, Quantity: 50},
	})
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	po, err := svc.CreateOrder(ctx, pr.ID, []procurement.LineInput{
		{ItemID: items[0].ID, Quantity: 60},
		{ItemID: items[1].ID, Quantity: 50},
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	gr, err := svc.CreateReceived(ctx, procurement.CreateReceivedInput{
		PurchaseOrderID: po.ID,
		Items:           []procurement.LineInput{{ItemID: items[0].ID, Quantity: 40}},
		IdempotencyKey:  "seed-demo-" + po.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	fmt.Printf("  request %s, order %s, receipt %s\n", pr.ID, po.ID, gr.ID)
	return nil
}

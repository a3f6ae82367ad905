package main

import (
	"context"
	"fmt"
	"log"

	"github.com/treedex/treedex"
	"github.com/treedex/treedex/internal/config"
	"github.com/treedex/treedex/pkg/types"
)

func main() {
	fmt.Println("Starting treedex example")

	conf := config.GetConfig()
	ctx := context.Background()

	tree, err := treedex.New(treedex.Config{
		Paths:         []string{conf.DataDir},
		MinimumFreeGB: conf.MinimumFreeGB,
		Label:         conf.Label,
		SegmentWidth:  conf.SegmentWidth,
		MaxDepth:      conf.MaxDepth,
		CacheLimitMB:  conf.CacheLimitMB,
		SortField:     conf.SortField,
	})
	if err != nil {
		log.Fatalf("Failed to initialize treedex: %s", err)
	}
	if err := tree.Start(ctx); err != nil {
		log.Fatalf("Failed to start treedex: %s", err)
	}
	defer tree.Close(ctx)

	// Build a small catalog tree.
	root, err := tree.InsertNode(ctx, treedex.InsertOptions{Name: "catalog"})
	if err != nil {
		log.Fatalf("Error creating root: %s", err)
	}
	fmt.Printf("Created root %s\n", root.ID)

	var last types.Node
	for _, name := range []string{"books", "music", "films"} {
		last, err = tree.InsertNode(ctx, treedex.InsertOptions{
			Target: root.ID,
			Name:   name,
		})
		if err != nil {
			log.Fatalf("Error creating child: %s", err)
		}
	}

	for _, name := range []string{"sci-fi", "poetry"} {
		if _, err := tree.InsertNode(ctx, treedex.InsertOptions{
			Target:   last.ID,
			Position: types.FirstChild,
			Name:     name,
		}); err != nil {
			log.Fatalf("Error creating grandchild: %s", err)
		}
	}

	// The first read drains the coalesced rebuild tasks.
	children, err := tree.GetChildren(ctx, root.ID)
	if err != nil {
		log.Fatalf("Error reading children: %s", err)
	}
	for _, c := range children {
		fmt.Printf("  %-8s priority=%d path=%s\n", c.Name, c.Priority, c.Path)
	}

	count, err := tree.GetDescendantsCount(ctx, root.ID)
	if err != nil {
		log.Fatalf("Error counting descendants: %s", err)
	}
	fmt.Printf("Descendants of root: %d\n", count)

	info := tree.CacheInfo()
	fmt.Printf("Cache: %d keys, %s of %s used\n",
		info.TotalKeys, info.TotalSizeHuman, info.MaxSizeHuman)
}

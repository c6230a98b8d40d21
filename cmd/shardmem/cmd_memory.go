// Package main memory commands: adding entries and the three retrieval
// modes (keyword query, per-shard search, semantic/hybrid search).
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shardmem/internal/search"
	"shardmem/internal/shard"
)

var (
	addSource     string
	addImportance float64

	queryLimit int
	queryCross bool

	searchLimit int

	semanticShard    string
	semanticTopK     int
	semanticMinScore float64
	semanticHybrid   bool
)

// addCmd stores one memory
var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a memory, routed to the best-matching shard",
	Long: `Stores free text in the registry. The router scores every shard by
keyword matches plus weighted shard importance and appends to the
winner; unmatched content lands on the default shard.

Cross-references are extracted from the text itself, e.g.:
  shardmem add "Projet actif: task release. Voir shard technical."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

// queryCmd searches all shards by keyword
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Keyword search across all shards",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

// searchCmd searches one shard by keyword
var searchCmd = &cobra.Command{
	Use:   "search <shard-id> <text>",
	Short: "Keyword search within a single shard",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSearch,
}

// semanticCmd searches by embedding similarity
var semanticCmd = &cobra.Command{
	Use:   "semantic <text>",
	Short: "Search by embedding similarity",
	Long: `Embeds the query and ranks stored transactions by cosine similarity.
With --hybrid, keyword matches are merged into the result set so the
search still returns results when the embedding backend is down.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSemantic,
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := boot(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	content := strings.Join(args, " ")
	id, err := a.router.AddMemory(ctx, content, addSource, addImportance)
	if err != nil {
		return err
	}

	fmt.Printf("Stored %s\n", id)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := boot(false)
	if err != nil {
		return err
	}
	defer a.Close()

	results := a.router.Query(strings.Join(args, " "), queryLimit, queryCross)
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, res := range results {
		printHit(i+1, res.ShardID, res.Score, res.Transaction, "")
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := boot(false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.router.SearchShard(args[0], strings.Join(args[1:], " "), searchLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, res := range results {
		printHit(i+1, res.ShardID, res.Score, res.Transaction, "")
	}
	return nil
}

func runSemantic(cmd *cobra.Command, args []string) error {
	a, err := boot(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	searcher := search.New(a.router, a.engine)
	query := strings.Join(args, " ")

	var results []search.Result
	if semanticHybrid {
		results, err = searcher.Hybrid(ctx, query, semanticShard, semanticTopK, semanticMinScore)
	} else {
		results, err = searcher.Semantic(ctx, query, semanticShard, semanticTopK, semanticMinScore)
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, res := range results {
		printHit(i+1, res.ShardID, res.Score, res.Transaction, res.MatchType)
	}
	return nil
}

// printHit renders one result line plus its content.
func printHit(rank int, shardID string, score float64, tx shard.Transaction, matchType string) {
	label := shardID
	if matchType != "" {
		label = fmt.Sprintf("%s, %s", shardID, matchType)
	}
	fmt.Printf("%2d. [%.2f] (%s) %s\n", rank, score, label, tx.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("    %s\n", truncateStr(tx.Content, 120))
	if len(tx.CrossRefs) > 0 {
		fmt.Printf("    refs: %s\n", strings.Join(tx.CrossRefs, ", "))
	}
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	addCmd.Flags().StringVar(&addSource, "source", string(shard.SourceManual), "Entry source: manual, automated or system")
	addCmd.Flags().Float64Var(&addImportance, "importance", 0.5, "Importance in [0,1]")

	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "Maximum results")
	queryCmd.Flags().BoolVar(&queryCross, "cross", false, "Follow cross-references into linked shards")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum results")

	semanticCmd.Flags().StringVar(&semanticShard, "shard", "", "Restrict to one shard id")
	semanticCmd.Flags().IntVar(&semanticTopK, "top", 5, "Maximum results")
	semanticCmd.Flags().Float64Var(&semanticMinScore, "min-score", 0, "Minimum similarity score")
	semanticCmd.Flags().BoolVar(&semanticHybrid, "hybrid", false, "Merge keyword matches into the ranking")
}

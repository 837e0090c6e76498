package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ppiankov/folio/internal/cache"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the on-disk response cache",
	Long: `The response cache keeps successfully interpreted model replies keyed by
provider, model and the exact prompt. It lives in cache.dir (default .folio-cache).`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and age",
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, err := openDiskCache()
		if err != nil {
			return err
		}
		st, err := disk.Stats()
		if err != nil {
			return err
		}
		printCacheStats(os.Stdout, st)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired and unreadable entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, err := openDiskCache()
		if err != nil {
			return err
		}
		removed, err := disk.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Pruned %d entries\n", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	RunE: func(cmd *cobra.Command, args []string) error {
		disk, err := openDiskCache()
		if err != nil {
			return err
		}
		if err := disk.Clear(); err != nil {
			return err
		}
		fmt.Println("✓ Cache cleared")
		return nil
	},
}

// cacheDir is the directory the maintenance commands operate on
var cacheDir string

func openDiskCache() (*cache.DiskCache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir := cfg.Cache.Dir
	if cacheDir != "" {
		dir = cacheDir
	}
	if dir == "" {
		return nil, fmt.Errorf("no cache directory configured (set cache.dir)")
	}
	return cache.NewDiskCache(dir, cfg.Cache.DiskTTL), nil
}

func printCacheStats(w io.Writer, st cache.DiskStats) {
	fmt.Fprintf(w, "Entries:  %d (%d expired)\n", st.Entries, st.Expired)
	fmt.Fprintf(w, "Size:     %s\n", humanBytes(st.Bytes))
	if !st.Oldest.IsZero() {
		fmt.Fprintf(w, "Oldest:   %s\n", st.Oldest.Format(time.RFC3339))
		fmt.Fprintf(w, "Newest:   %s\n", st.Newest.Format(time.RFC3339))
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheDir, "dir", "", "cache directory (default from config)")
}

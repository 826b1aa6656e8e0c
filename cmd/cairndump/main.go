// Command cairndump inspects a run file: it prints the page tree and,
// with -pairs, every key/value pair.
//
// Usage:
//
//	cairndump [-pairs] [-page N] <run.sst>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cairnkv/cairn/internal/bufferpool"
	"github.com/cairnkv/cairn/internal/sstable"
	"github.com/cairnkv/cairn/internal/vfs"
)

var (
	showPairs = flag.Bool("pairs", false, "print every key/value pair")
	onlyPage  = flag.Int("page", -1, "print a single page by index")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: cairndump [-pairs] [-page N] <run.sst>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := dump(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "cairndump: %v\n", err)
		os.Exit(1)
	}
}

func dump(path string) error {
	fs := vfs.Default()
	pool := bufferpool.New[*sstable.Page](64)
	r := sstable.NewReader(fs, "", path, pool)

	numPages, err := r.NumPages()
	if err != nil {
		return err
	}
	if numPages == 0 {
		fmt.Printf("%s: empty run (0 pages)\n", path)
		return nil
	}

	if *onlyPage >= 0 {
		if *onlyPage >= numPages {
			return fmt.Errorf("page %d out of range (run has %d pages)", *onlyPage, numPages)
		}
		page, err := r.Page(*onlyPage)
		if err != nil {
			return err
		}
		printPage(*onlyPage, page, true)
		return nil
	}

	firstLeaf, err := r.FirstLeafIndex()
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d pages (%d internal, %d leaves)\n",
		path, numPages, firstLeaf, numPages-firstLeaf)

	var pairs, tombstones int
	for i := range numPages {
		page, err := r.Page(i)
		if err != nil {
			return err
		}
		printPage(i, page, *showPairs)
		if page.Type == sstable.PageLeaf {
			pairs += page.Count()
			for _, p := range page.Pairs {
				if p.IsTombstone() {
					tombstones++
				}
			}
		}
	}
	fmt.Printf("total: %d pairs, %d tombstones\n", pairs, tombstones)
	return nil
}

func printPage(index int, page *sstable.Page, withPairs bool) {
	fmt.Printf("page %4d: %-8s count=%-4d keys=[%d, %d]",
		index, page.Type, page.Count(), page.MinKey(), page.MaxKey())
	if page.Type == sstable.PageInternal {
		fmt.Printf(" rightmost=%d", page.RightmostChild)
	}
	fmt.Println()
	if !withPairs {
		return
	}
	for _, p := range page.Pairs {
		if page.Type == sstable.PageLeaf && p.IsTombstone() {
			fmt.Printf("  %12d  <tombstone>\n", p.Key)
			continue
		}
		fmt.Printf("  %12d  %d\n", p.Key, p.Value)
	}
}

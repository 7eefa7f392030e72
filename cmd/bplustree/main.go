// Command bplustree opens a file-backed ordered index and serves a tiny
// line-oriented REPL over it: get/put/del/next. It exists to give the
// library a runnable example collaborator, not to be a database server
// in its own right.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"bplustree/btree"
	"bplustree/internal/driver"
	"bplustree/internal/page"
	"bplustree/internal/store"
)

func int64Cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func main() {
	var (
		dbPath   = flag.StringP("path", "p", "bplustree.db", "path to the backing store file")
		pageSize = flag.IntP("page-size", "s", store.DefaultMaxPageSize, "maximum encoded page size in bytes")
		verbose  = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	raw, err := store.Open(*dbPath, *pageSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	defer raw.Close()

	cached := store.NewLRUBlockStore(raw, store.DefaultCacheSize)

	sd, err := driver.Open(cached)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open driver:", err)
		os.Exit(1)
	}

	tree, err := btree.Open[int64, string](sd, page.Int64Codec{}, page.StringCodec{}, int64Cmp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open tree:", err)
		os.Exit(1)
	}

	fmt.Println("bplustree REPL - commands: get <k> | put <k> <v> | del <k> | next <k> | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := dispatch(tree, fields); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func dispatch(tree *btree.Tree[int64, string], fields []string) error {
	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <k>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		v, found, err := tree.Find(k)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("(not found)")
			return nil
		}
		if !v.Valid {
			fmt.Println("(null)")
			return nil
		}
		fmt.Println(v.Value)
	case "put":
		if len(fields) != 3 {
			return fmt.Errorf("usage: put <k> <v>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		return tree.Add(k, page.Some(fields[2]))
	case "del":
		if len(fields) != 2 {
			return fmt.Errorf("usage: del <k>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		_, found, err := tree.Delete(k)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("(not found)")
		}
	case "next":
		if len(fields) != 2 {
			return fmt.Errorf("usage: next <k>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		next, found, err := tree.FindNext(k)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("(none)")
			return nil
		}
		fmt.Println(next)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

// tsctl inspects a persisted chunk envelope on disk, printing its
// encoding tag, sample count, and timestamp span, the way the teacher's
// cmd/xmeta inspects on-disk object metadata.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/internal/id"
	"github.com/nvaistore-labs/tscore/internal/nlog"
)

func main() {
	path := flag.String("f", "", "path to a serialized chunk envelope")
	genID := flag.Bool("gen-id", false, "print a fresh node/series handle id and exit")
	flag.Parse()
	if *genID {
		fmt.Println(id.New())
		return
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: tsctl -f <chunk-file> | -gen-id")
		os.Exit(1)
	}
	if err := run(*path); err != nil {
		nlog.Errorf("tsctl: %v", err)
		os.Exit(1)
	}
}

func run(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	env, rest, err := chunk.Deserialize(buf)
	if err != nil {
		return err
	}
	fmt.Printf("encoding:   %s\n", env.Encoding)
	fmt.Printf("samples:    %d\n", env.Chunk.Len())
	fmt.Printf("first ts:   %d\n", env.Chunk.FirstTimestamp())
	fmt.Printf("last ts:    %d\n", env.Chunk.LastTimestamp())
	fmt.Printf("size bytes: %d / %d max\n", env.Chunk.Size(), env.Chunk.MaxSize())
	if len(rest) != 0 {
		fmt.Printf("trailing:   %d unread bytes\n", len(rest))
	}
	return nil
}

package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	storage "github.com/minidb/storage"
	internalstorage "github.com/minidb/storage/internal/storage"
	"github.com/minidb/storage/internal/pkg/logging"
)

// diskinfo opens a database file read-only and reports the virtual
// length of both its data and log files, along with the invalid-state
// flag recorded in the header page. It performs no recovery; it only
// reports what Open would see. With -mark-invalid it instead opens the
// file read-write and sets the invalid-state flag.
func main() {
	path := flag.String("db", "", "path to the database file")
	level := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	markInvalid := flag.Bool("mark-invalid", false, "set the invalid-state flag on page 0 instead of reporting (requires write access)")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: diskinfo -db <path>")
		os.Exit(2)
	}

	logConf := logging.DefaultConfig()
	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(2)
	}
	logConf.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := logConf.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := storage.DefaultConnectionConfig(*path)
	config.ReadOnly = !*markInvalid
	config.LogLevel = *level

	db, err := storage.OpenWithConfig(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer db.Close()

	disk := db.Disk()

	if *markInvalid {
		if err := disk.MarkAsInvalidState(); err != nil {
			fmt.Fprintf(os.Stderr, "mark invalid state: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("marked %s invalid; the invalid-state flag is set on page 0\n", *path)
		return
	}

	reader := disk.GetReader()
	header, err := reader.ReadPage(0, internalstorage.OriginData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read header page: %v\n", err)
		os.Exit(1)
	}
	defer reader.ReleasePage(header)

	fmt.Printf("data file:     %s\n", *path)
	fmt.Printf("data length:   %d bytes\n", disk.GetVirtualLength(internalstorage.OriginData))
	fmt.Printf("log length:    %d bytes\n", disk.GetVirtualLength(internalstorage.OriginLog))
	fmt.Printf("max items:     %d\n", disk.MaxItemsCount())
	fmt.Printf("collation:     %d\n", internalstorage.ReadCollationPragma(header.Bytes))
	fmt.Printf("invalid state: %t\n", internalstorage.IsInvalidState(header.Bytes))
}

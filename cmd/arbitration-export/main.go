package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"arbitrationd/core/events"
)

// finalizedEventTypes are the envelope types this tool exports: the
// terminal outcomes of the payout and dispute lifecycles, the records an
// offline analytics pipeline cares about.
var finalizedEventTypes = map[string]bool{
	"treasury.payout_released":  true,
	"treasury.payout_denied":    true,
	"treasury.payout_cancelled": true,
	"treasury.ruling_finalized": true,
	"treasury.custody_exited":   true,
}

type exportRow struct {
	Seq       int64  `parquet:"name=seq, type=INT64"`
	Type      string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attrs     string `parquet:"name=attrs, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func main() {
	var eventsPath, outPath string
	flag.StringVar(&eventsPath, "events", "arbitrationd-events.db", "path to the durable event log")
	flag.StringVar(&outPath, "out", "arbitrationd-finalized.parquet", "output Parquet file path")
	flag.Parse()

	logger := log.New(os.Stdout, "arbitration-export ", log.LstdFlags|log.Lmsgprefix)

	stream, err := events.NewStream(eventsPath)
	if err != nil {
		logger.Fatalf("open event stream: %v", err)
	}
	defer stream.Close()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCtx()
	_, cancelSub, backlog, err := stream.Subscribe(ctx, 0)
	if err != nil {
		logger.Fatalf("read event log: %v", err)
	}
	defer cancelSub()

	file, err := os.Create(outPath)
	if err != nil {
		logger.Fatalf("create output file: %v", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(exportRow), 1)
	if err != nil {
		file.Close()
		logger.Fatalf("configure parquet schema: %v", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	exported := 0
	skipped := 0
	for _, env := range backlog {
		if !finalizedEventTypes[env.Type] {
			skipped++
			continue
		}
		attrsJSON, err := json.Marshal(env.Attrs)
		if err != nil {
			logger.Fatalf("marshal attrs for seq %d: %v", env.Seq, err)
		}
		row := &exportRow{
			Seq:       int64(env.Seq),
			Type:      env.Type,
			Timestamp: time.Unix(env.Timestamp, 0).UTC().Format(time.RFC3339),
			Attrs:     string(attrsJSON),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			logger.Fatalf("write parquet row: %v", err)
		}
		exported++
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		logger.Fatalf("flush parquet writer: %v", err)
	}
	if err := file.Close(); err != nil {
		logger.Fatalf("close output file: %v", err)
	}

	logger.Printf("exported %d finalized records to %s (%d non-terminal records skipped)", exported, strings.TrimSpace(outPath), skipped)
}

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jszwec/csvutil"

	"github.com/raweden/wasm-ylinker-sub002/wasm/rewrite"
)

func writeReport(w io.Writer, report *rewrite.Report) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)
	if err := encoder.EncodeHeader(rewrite.FunctionReport{}); err != nil {
		return err
	}
	for i := range report.Functions {
		if err := encoder.Encode(&report.Functions[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeReportFile(path string, report *rewrite.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := writeReport(f, report); err != nil {
		f.Close()
		return fmt.Errorf("report: %w", err)
	}
	return f.Close()
}

// Copyright 2026 The PolicySync Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// WriteArchive writes records to w as zstd-compressed JSON Lines, one
// record per line. The archive carries chain hashes, so a reader can
// run VerifyChain over the decoded records.
func WriteArchive(w io.Writer, records []Record) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("audit: creating zstd writer: %w", err)
	}

	lines := json.NewEncoder(encoder)
	for _, record := range records {
		if err := lines.Encode(record); err != nil {
			encoder.Close()
			return fmt.Errorf("audit: encoding record %d: %w", record.Sequence, err)
		}
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("audit: finishing archive: %w", err)
	}
	return nil
}

// ReadArchive decodes an archive written by WriteArchive.
func ReadArchive(r io.Reader) ([]Record, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("audit: opening zstd stream: %w", err)
	}
	defer decoder.Close()

	var records []Record
	scanner := bufio.NewScanner(decoder)
	scanner.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("audit: decoding archive line %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: reading archive: %w", err)
	}
	return records, nil
}

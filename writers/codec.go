//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of flowetl.
//
// flowetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// flowetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with flowetl. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aaronlmathis/flowetl/core"
)

// BulkCodec is the wire format of a bulk HTTP endpoint: how a batch is encoded into one
// request body and how the response is turned into a per-record outcome.
type BulkCodec interface {
	ContentType() string
	Encode(batch core.Batch) ([]byte, error)
	// Decode interprets a 2xx response to a request carrying size records.
	Decode(body []byte, size int) (*core.BatchResult, error)
}

// encodeDocument marshals the nested document of a record.
func encodeDocument(buf *bytes.Buffer, record core.Record) error {
	data, err := json.Marshal(record.Nest())
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

// splitEncodable removes the records JSON cannot represent from batch. positions maps each index
// of the returned batch to its index in batch; rejected uses indexes of batch.
func splitEncodable(batch core.Batch) (core.Batch, []int, []core.RecordFailure) {
	var rejected []core.RecordFailure
	for i, record := range batch {
		if field, ok := nonFiniteField(record); ok {
			rejected = append(rejected, core.RecordFailure{
				Index:  i,
				Reason: fmt.Sprintf("field %q holds %v, which JSON cannot encode", field, record[field]),
			})
		}
	}
	if len(rejected) == 0 {
		return batch, nil, nil
	}

	kept := make(core.Batch, 0, len(batch)-len(rejected))
	positions := make([]int, 0, len(batch)-len(rejected))
	next := 0
	for i, record := range batch {
		if next < len(rejected) && rejected[next].Index == i {
			next++
			continue
		}
		kept = append(kept, record)
		positions = append(positions, i)
	}
	return kept, positions, rejected
}

func nonFiniteField(record core.Record) (string, bool) {
	for _, key := range record.Keys() {
		if f, ok := record[key].(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return key, true
		}
	}
	return "", false
}

// mergeRejected maps the indexes of result, which describe the batch returned by splitEncodable,
// back to the original batch and adds the records split off before encoding.
func mergeRejected(result *core.BatchResult, positions []int, rejected []core.RecordFailure) *core.BatchResult {
	if len(rejected) == 0 {
		return result
	}
	merged := &core.BatchResult{Accepted: result.Accepted}
	for _, failure := range result.Rejected {
		failure.Index = positions[failure.Index]
		merged.Rejected = append(merged.Rejected, failure)
	}
	merged.Rejected = append(merged.Rejected, rejected...)
	sort.Slice(merged.Rejected, func(i, j int) bool {
		return merged.Rejected[i].Index < merged.Rejected[j].Index
	})
	return merged
}

// NDJSONCodec posts one JSON document per line. The endpoint either takes the whole body or
// fails it; there are no per-record outcomes.
type NDJSONCodec struct{}

func (NDJSONCodec) ContentType() string { return "application/x-ndjson" }

// Encode writes every record as one line of JSON.
func (NDJSONCodec) Encode(batch core.Batch) ([]byte, error) {
	var buf bytes.Buffer
	for i, record := range batch {
		if err := encodeDocument(&buf, record); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func (NDJSONCodec) Decode(_ []byte, size int) (*core.BatchResult, error) {
	return &core.BatchResult{Accepted: size}, nil
}

// ElasticsearchCodec speaks the Elasticsearch `_bulk` API: an index action line before every
// document, and per-item status in the response.
type ElasticsearchCodec struct {
	// Index is the target index name; %Y %m %d and %H are replaced with the UTC flush time.
	Index string
	// Clock returns the flush time. Defaults to time.Now.
	Clock func() time.Time
}

// NewElasticsearchCodec creates a codec writing to the index pattern.
func NewElasticsearchCodec(index string) *ElasticsearchCodec {
	return &ElasticsearchCodec{Index: index, Clock: time.Now}
}

func (c *ElasticsearchCodec) ContentType() string { return "application/x-ndjson" }

// Encode renders action and source line pairs. The index name is resolved once per batch.
func (c *ElasticsearchCodec) Encode(batch core.Batch) ([]byte, error) {
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}

	action, err := json.Marshal(map[string]interface{}{
		"index": map[string]string{"_index": ExpandIndex(c.Index, clock())},
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i, record := range batch {
		buf.Write(action)
		buf.WriteByte('\n')
		if err := encodeDocument(&buf, record); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Decode reads the `items` array of a bulk response. Items are positional; an item with a
// status outside 2xx or an `error` object is a rejection of the record at the same index.
func (c *ElasticsearchCodec) Decode(body []byte, size int) (*core.BatchResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid bulk response body")
	}
	parsed := gjson.ParseBytes(body)

	items := parsed.Get("items").Array()
	if len(items) != size {
		if !parsed.Get("errors").Bool() {
			// some proxies strip items from fully successful responses
			return &core.BatchResult{Accepted: size}, nil
		}
		return nil, fmt.Errorf("bulk response has %d items for %d records", len(items), size)
	}

	result := &core.BatchResult{}
	for i, item := range items {
		// each item is keyed by its action: index, create, update or delete
		var outcome gjson.Result
		item.ForEach(func(_, value gjson.Result) bool {
			outcome = value
			return false
		})

		status := int(outcome.Get("status").Int())
		errObj := outcome.Get("error")
		if errObj.Exists() || status < 200 || status > 299 {
			result.Rejected = append(result.Rejected, core.RecordFailure{
				Index:  i,
				Status: status,
				Reason: bulkErrorReason(errObj),
			})
			continue
		}
		result.Accepted++
	}
	return result, nil
}

func bulkErrorReason(errObj gjson.Result) string {
	if !errObj.Exists() {
		return "rejected without error details"
	}
	if !errObj.IsObject() {
		return errObj.String()
	}
	kind, reason := errObj.Get("type").String(), errObj.Get("reason").String()
	switch {
	case kind != "" && reason != "":
		return kind + ": " + reason
	case reason != "":
		return reason
	case kind != "":
		return kind
	default:
		return errObj.Raw
	}
}

var indexPlaceholders = []string{"%Y", "%m", "%d", "%H"}

// ExpandIndex replaces the date placeholders of an index pattern with the UTC components of t.
func ExpandIndex(pattern string, t time.Time) string {
	if !strings.Contains(pattern, "%") {
		return pattern
	}
	t = t.UTC()
	values := []string{
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		fmt.Sprintf("%02d", t.Hour()),
	}
	pairs := make([]string, 0, 2*len(values))
	for i, p := range indexPlaceholders {
		pairs = append(pairs, p, values[i])
	}
	return strings.NewReplacer(pairs...).Replace(pattern)
}

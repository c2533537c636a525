package intake

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/model"
)

// 单行最大长度，和 APM server 默认值一致
const maxLineSize = 300 * 1024

var api = jsoniter.ConfigCompatibleWithStandardLibrary

var eventKinds = map[model.Kind]bool{
	model.KindTransaction: true,
	model.KindSpan:        true,
	model.KindError:       true,
	model.KindMetricSet:   true,
}

// LineError 某一行没通过校验
type LineError struct {
	Line     int    `json:"line"`
	Message  string `json:"message"`
	Document string `json:"document,omitempty"`
}

// bodyReader 按 Content-Encoding 解压
func bodyReader(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return zlib.NewReader(r)
	default:
		return nil, errorx.NewBiz(errorx.CodeBadPayload, errorx.WithService(errorx.ServiceIntake),
			errorx.WithMessage("unsupported content encoding "+encoding))
	}
}

// decode 解析 ndjson：第一行必须是 metadata，之后每行一个事件。
// metadata 不合法时返回 error；事件行的问题记在 []LineError 里，其它行照常接收。
func decode(r io.Reader, b *Batch) ([]LineError, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var lineErrs []LineError
	first := true

	for n := 1; ; n++ {
		line, err := readLine(br)
		if err != nil && err != io.EOF {
			return lineErrs, errorx.Wrap(err, errorx.CodeBadPayload, errorx.WithService(errorx.ServiceIntake))
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			kind, raw, perr := parseLine(line)
			switch {
			case first && (perr != nil || kind != model.KindMetadata):
				msg := "first line must be a metadata object"
				if perr != nil {
					msg = perr.Error()
				}
				return nil, errorx.NewBiz(errorx.CodeBadPayload, errorx.WithService(errorx.ServiceIntake),
					errorx.WithMessage(msg))
			case first:
				b.Metadata = raw
				b.MetadataRaw = append([]byte(nil), line...)
				first = false
			case perr != nil:
				lineErrs = append(lineErrs, LineError{Line: n, Message: perr.Error(), Document: string(line)})
			case !eventKinds[kind]:
				lineErrs = append(lineErrs, LineError{Line: n, Message: fmt.Sprintf("did not recognize object type %q", kind), Document: string(line)})
			default:
				b.Events = append(b.Events, Event{Kind: kind, Raw: raw})
			}
		}
		if err == io.EOF {
			if first {
				return nil, errorx.NewBiz(errorx.CodeBadPayload, errorx.WithService(errorx.ServiceIntake),
					errorx.WithMessage("empty body"))
			}
			return lineErrs, nil
		}
	}
}

func readLine(br *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		buf = append(buf, chunk...)
		if len(buf) > maxLineSize {
			return nil, fmt.Errorf("line exceeded max size %d", maxLineSize)
		}
		if err != nil || !isPrefix {
			return buf, err
		}
	}
}

// parseLine 一行必须是只有一个 key 的对象
func parseLine(line []byte) (model.Kind, jsoniter.RawMessage, error) {
	var m map[string]jsoniter.RawMessage
	if err := api.Unmarshal(line, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("expected exactly one key, got %d", len(m))
	}
	for k, v := range m {
		return model.Kind(k), v, nil
	}
	return "", nil, nil
}

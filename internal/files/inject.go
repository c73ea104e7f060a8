package files

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

const fetchFanOut = 4

// InjectorConfig bounds the injector's per-file and total context sizes.
type InjectorConfig struct {
	MaxFileBytes    int64 // default 10 MiB
	MaxContextBytes int   // default 200 KiB
}

func (c InjectorConfig) maxFileBytes() int64 {
	if c.MaxFileBytes > 0 {
		return c.MaxFileBytes
	}
	return 10 * 1024 * 1024
}

func (c InjectorConfig) maxContextBytes() int {
	if c.MaxContextBytes > 0 {
		return c.MaxContextBytes
	}
	return 200 * 1024
}

// Injector fetches artifacts, extracts text by media type, frames a
// preamble, and prepends it to the first user message.
type Injector struct {
	store  Store
	config InjectorConfig

	// preambleCache memoizes the framed preamble bytes by the blake2b
	// digest of the sorted file_ids set, guaranteeing identical file_ids
	// produce identical injected bytes without re-fetching and
	// re-extracting on every request.
	preambleCache *lru.Cache[[32]byte, string]
	mu            sync.Mutex
}

// NewInjector constructs an Injector backed by store.
func NewInjector(store Store, config InjectorConfig) *Injector {
	cache, _ := lru.New[[32]byte, string](512)
	return &Injector{store: store, config: config, preambleCache: cache}
}

// Inject mutates req in place, prepending the framed file-context preamble
// to the first user-role message. It is a no-op
// when req.FileIDs is empty.
func (inj *Injector) Inject(ctx context.Context, req *domain.ChatRequest) error {
	if len(req.FileIDs) == 0 {
		return nil
	}
	for _, id := range req.FileIDs {
		if !strings.HasPrefix(id, "file-") {
			return gatewayerr.Validation("file id %q must start with file-", id)
		}
	}

	key := idempotencyKey(req.FileIDs)
	if cached, ok := inj.preambleCache.Get(key); ok {
		return PrependPreamble(req, cached)
	}

	preamble, err := inj.buildPreamble(ctx, req.FileIDs)
	if err != nil {
		return err
	}
	inj.preambleCache.Add(key, preamble)
	return PrependPreamble(req, preamble)
}

func idempotencyKey(fileIDs []string) [32]byte {
	sorted := append([]string(nil), fileIDs...)
	sort.Strings(sorted)
	return blake2b.Sum256([]byte(strings.Join(sorted, "\x00")))
}

type fetchResult struct {
	rec  ArtifactRecord
	text string
	err  error
}

func (inj *Injector) buildPreamble(ctx context.Context, fileIDs []string) (string, error) {
	results := make([]fetchResult, len(fileIDs))
	sem := make(chan struct{}, fetchFanOut)
	var wg sync.WaitGroup
	for i, id := range fileIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			rec, data, err := inj.store.Get(ctx, id)
			if err != nil {
				results[i] = fetchResult{err: err}
				return
			}
			if rec.SizeBytes > inj.config.maxFileBytes() {
				results[i] = fetchResult{err: gatewayerr.Validation("file %q exceeds max file size", id)}
				return
			}
			results[i] = fetchResult{rec: rec, text: Extract(rec.MediaType, data)}
		}(i, id)
	}
	wg.Wait()

	allFailed := true
	var b strings.Builder
	b.WriteString("=== UPLOADED FILES CONTEXT ===\n")
	for i, res := range results {
		if res.err != nil {
			var gwErr *gatewayerr.Error
			if ge, ok := res.err.(*gatewayerr.Error); ok {
				gwErr = ge
			}
			if gwErr != nil && gwErr.Kind == gatewayerr.KindFileNotFound {
				return "", res.err
			}
			if gwErr != nil && gwErr.Kind == gatewayerr.KindValidation {
				return "", res.err
			}
			fmt.Fprintf(&b, "📄 **File: %s** (error)\nCreated: -\n\n**Processed Content:**\n[File content could not be processed: %v]\n\n", fileIDs[i], res.err)
			continue
		}
		allFailed = false
		created := time.Unix(res.rec.CreatedUnix, 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "📄 **File: %s** (%s, %d bytes)\nCreated: %s\n\n**Processed Content:**\n%s\n\n",
			res.rec.OriginalFilename, res.rec.MediaType, res.rec.SizeBytes, created, res.text)
	}
	if allFailed && len(results) > 0 {
		return "", gatewayerr.Validation("all referenced files failed to process")
	}
	b.WriteString("========================")

	out := b.String()
	if len(out) > inj.config.maxContextBytes() {
		return "", gatewayerr.Validation("injected file context exceeds max context size (%d bytes)", inj.config.maxContextBytes())
	}
	return out, nil
}

// PrependPreamble inserts preamble as a prefix to the first user-role
// message in req, leaving every other message unchanged. Shared by the
// Files injector and the KB retriever's context_augmentation path, which
// both frame a preamble block and prepend it the same way.
func PrependPreamble(req *domain.ChatRequest, preamble string) error {
	for i, m := range req.Messages {
		if m.Role != domain.RoleUser {
			continue
		}
		if m.IsTextOnly() {
			req.Messages[i].Text = preamble + "\n" + m.Text
		} else {
			req.Messages[i].Blocks = append([]domain.ContentBlock{{Type: domain.ContentText, Text: preamble + "\n"}}, m.Blocks...)
		}
		return nil
	}
	return nil
}

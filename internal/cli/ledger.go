package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"rollguard/internal/ledger/models"
	"rollguard/internal/ledger/service"
	"rollguard/internal/ledger/store"
)

// BlockView is the printed form of a ledger block.
type BlockView struct {
	Chain        string          `json:"chain"`
	Sequence     int64           `json:"sequence"`
	PreviousHash string          `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
	Timestamp    string          `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
}

func newBlockView(b models.Block) BlockView {
	return BlockView{
		Chain:        b.Chain,
		Sequence:     b.Sequence,
		PreviousHash: b.PreviousHash,
		CurrentHash:  b.CurrentHash,
		Timestamp:    b.TimestampString(),
		Payload:      json.RawMessage(b.Payload),
	}
}

func (v BlockView) render(w io.Writer) {
	fmt.Fprintf(w, "%s #%d %s\n  prev %s\n  hash %s\n  %s\n", v.Chain, v.Sequence, v.Timestamp, v.PreviousHash, v.CurrentHash, v.Payload)
}

type ledgerOptions struct {
	Path string
}

// NewLedgerCommand groups the commands that work on the embedded ledger file.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ledgerOptions{Path: rootOpts.Config.Ledger.BoltPath}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Append to, inspect and verify hash-chained ledgers",
	}
	cmd.PersistentFlags().StringVar(&opts.Path, "path", opts.Path, "ledger file")

	cmd.AddCommand(newLedgerAppendCommand(rootOpts, opts))
	cmd.AddCommand(newLedgerVoteCommand(rootOpts, opts))
	cmd.AddCommand(newLedgerVerifyCommand(rootOpts, opts))
	cmd.AddCommand(newLedgerShowCommand(rootOpts, opts))

	return cmd
}

// withLedger opens the ledger file for the duration of fn.
func withLedger(cmd *cobra.Command, rootOpts *RootOptions, opts *ledgerOptions, fn func(*service.Service) error) error {
	bolt, err := store.NewBolt(opts.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open ledger", err)
	}
	defer bolt.Close()

	svc, err := service.New(bolt, service.WithLogger(rootOpts.logger(cmd)))
	if err != nil {
		return WrapExitError(ExitFailure, "cannot start ledger", err)
	}
	return fn(svc)
}

func newLedgerAppendCommand(rootOpts *RootOptions, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "append <chain> <json-payload>",
		Short: "Append a JSON payload as the next block of a chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := decodePayload(args[1])
			if err != nil {
				return err
			}
			return appendBlock(cmd, rootOpts, opts, args[0], payload)
		},
	}
}

func newLedgerVoteCommand(rootOpts *RootOptions, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <voter-id> <election-id> <candidate-id>",
		Short: "Record a vote on the votes chain; the voter id is stored hashed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appendBlock(cmd, rootOpts, opts, models.ChainVotes, service.VotePayload(args[0], args[1], args[2]))
		},
	}
}

func appendBlock(cmd *cobra.Command, rootOpts *RootOptions, opts *ledgerOptions, chain string, payload any) error {
	return withLedger(cmd, rootOpts, opts, func(svc *service.Service) error {
		block, err := svc.Append(cmd.Context(), chain, payload)
		if err != nil {
			return err
		}
		view := newBlockView(*block)
		return rootOpts.formatter(cmd).Success(view, view.render)
	})
}

// decodePayload keeps numbers as json.Number so they are hashed exactly as
// written.
func decodePayload(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, WrapExitError(ExitCommandError, "payload is not valid JSON", err)
	}
	if dec.More() {
		return nil, NewExitError(ExitCommandError, "payload must be a single JSON value")
	}
	return payload, nil
}

// VerificationView is the printed form of a chain verification.
type VerificationView struct {
	Chain             string      `json:"chain"`
	Valid             bool        `json:"valid"`
	Blocks            int64       `json:"blocks"`
	FirstInvalidIndex *int64      `json:"first_invalid_index,omitempty"`
	Issues            []IssueView `json:"issues"`
}

type IssueView struct {
	Sequence int64  `json:"sequence"`
	Kind     string `json:"kind"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func newLedgerVerifyCommand(rootOpts *RootOptions, opts *ledgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <chain>",
		Short: "Replay a chain and report every broken block; exits 1 when the chain is invalid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, rootOpts, opts, func(svc *service.Service) error {
				v, err := svc.Verify(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view := VerificationView{
					Chain:             v.Chain,
					Valid:             v.Valid,
					Blocks:            v.Blocks,
					FirstInvalidIndex: v.FirstInvalidIndex,
					Issues:            make([]IssueView, 0, len(v.Issues)),
				}
				for _, is := range v.Issues {
					view.Issues = append(view.Issues, IssueView{Sequence: is.Sequence, Kind: string(is.Kind), Expected: is.Expected, Actual: is.Actual})
				}
				render := func(w io.Writer) {
					if view.Valid {
						fmt.Fprintf(w, "%s: valid, %d blocks\n", view.Chain, view.Blocks)
						return
					}
					fmt.Fprintf(w, "%s: INVALID at block %d of %d\n", view.Chain, *view.FirstInvalidIndex, view.Blocks)
					for _, is := range view.Issues {
						fmt.Fprintf(w, "  #%d %s expected=%s actual=%s\n", is.Sequence, is.Kind, is.Expected, is.Actual)
					}
				}
				out := rootOpts.formatter(cmd)
				if !view.Valid {
					return out.Failure(view, NewExitError(ExitFailure, "chain "+view.Chain+" failed verification"), render)
				}
				return out.Success(view, render)
			})
		},
	}
}

func newLedgerShowCommand(rootOpts *RootOptions, opts *ledgerOptions) *cobra.Command {
	var (
		seq   string
		page  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "show <chain>",
		Short: "Print one block with --seq, or a page of blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, rootOpts, opts, func(svc *service.Service) error {
				out := rootOpts.formatter(cmd)
				if seq != "" {
					n, err := strconv.ParseInt(seq, 10, 64)
					if err != nil {
						return WrapExitError(ExitCommandError, "invalid --seq", err)
					}
					block, err := svc.Block(cmd.Context(), args[0], n)
					if err != nil {
						return err
					}
					view := newBlockView(*block)
					return out.Success(view, view.render)
				}

				p, err := svc.Chain(cmd.Context(), args[0], page, limit)
				if err != nil {
					return err
				}
				blocks := make([]BlockView, 0, len(p.Blocks))
				for _, b := range p.Blocks {
					blocks = append(blocks, newBlockView(b))
				}
				data := map[string]any{"blocks": blocks, "total": p.Total, "page": p.Page, "limit": p.Limit}
				return out.Success(data, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d blocks, page %d\n", args[0], p.Total, p.Page)
					for _, b := range blocks {
						b.render(w)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&seq, "seq", "", "sequence number of a single block")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "blocks per page")
	return cmd
}

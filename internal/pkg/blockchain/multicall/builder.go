package multicall

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/multiread/internal/pkg/abicodec"
)

// Target is one subcall of a Request: the contract to call, its arguments
// and the label its result is reported under.
type Target struct {
	Address common.Address
	Args    []any
	Label   string
}

// Request applies one accessor to a list of targets.
type Request struct {
	Signature abicodec.Signature
	Targets   []Target
}

// PerTarget calls the zero-argument accessor sig on every address. Results
// are labelled with the address followed by suffix.
func PerTarget(sig abicodec.Signature, addresses []common.Address, suffix string) Request {
	targets := make([]Target, len(addresses))
	for i, addr := range addresses {
		targets[i] = Target{Address: addr, Label: addr.Hex() + suffix}
	}
	return Request{Signature: sig, Targets: targets}
}

// ByArgument calls sig on contract once per address, passing the address as
// the only argument. Results are labelled with the address followed by suffix.
func ByArgument(sig abicodec.Signature, contract common.Address, addresses []common.Address, suffix string) Request {
	targets := make([]Target, len(addresses))
	for i, addr := range addresses {
		targets[i] = Target{Address: contract, Args: []any{addr}, Label: addr.Hex() + suffix}
	}
	return Request{Signature: sig, Targets: targets}
}

// Single is a request for exactly one call.
func Single(sig abicodec.Signature, contract common.Address, label string, args ...any) Request {
	return Request{
		Signature: sig,
		Targets:   []Target{{Address: contract, Args: args, Label: label}},
	}
}

// BuildDescriptors encodes every request into descriptors and labels.
//
// Both slices come out of the same loop, requests in order and targets in
// order within each request, so descriptors[i] is always the call whose
// result is reported as labels[i]. Consumers rely on this order.
func BuildDescriptors(requests []Request) ([]Descriptor, []string, error) {
	var (
		descriptors []Descriptor
		labels      []string
	)
	seen := make(map[string]struct{})

	for ri, req := range requests {
		if err := req.Signature.Validate(); err != nil {
			return nil, nil, fmt.Errorf("request %d: %w", ri, err)
		}
		for ti, target := range req.Targets {
			if target.Label == "" {
				return nil, nil, fmt.Errorf("%w: request %d target %d has no label",
					abicodec.ErrEncoding, ri, ti)
			}
			if _, dup := seen[target.Label]; dup {
				return nil, nil, fmt.Errorf("%w: duplicate field label %q", abicodec.ErrEncoding, target.Label)
			}
			seen[target.Label] = struct{}{}

			callData, err := abicodec.EncodeCall(req.Signature, target.Args...)
			if err != nil {
				return nil, nil, fmt.Errorf("request %d target %d (%s): %w", ri, ti, target.Label, err)
			}

			descriptors = append(descriptors, Descriptor{
				Target:   target.Address,
				CallData: callData,
				Outputs:  req.Signature.Outputs,
			})
			labels = append(labels, target.Label)
		}
	}

	return descriptors, labels, nil
}

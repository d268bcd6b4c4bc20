package quorum

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// LocalApprover signs with a key held in-process. Intended for development
// and single-operator deployments; production validator keys belong in
// remote approvers.
type LocalApprover struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewLocalApprover loads a hex-encoded secp256k1 private key
func NewLocalApprover(hexKey string) (*LocalApprover, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse approver key: %w", err)
	}
	return &LocalApprover{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

func (a *LocalApprover) Address() string { return a.address }

func (a *LocalApprover) Approve(ctx context.Context, digest []byte) ([]byte, error) {
	return crypto.Sign(digest, a.key)
}

// RemoteApprover requests a signature from an external validator service.
// The service decides whether to sign; a non-200 response is a decline.
type RemoteApprover struct {
	address  string
	endpoint string
	client   *http.Client
}

// NewRemoteApprover wires a validator endpoint under its expected address
func NewRemoteApprover(address, endpoint string, client *http.Client) *RemoteApprover {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteApprover{address: address, endpoint: endpoint, client: client}
}

func (a *RemoteApprover) Address() string { return a.address }

func (a *RemoteApprover) Approve(ctx context.Context, digest []byte) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"digest": hex.EncodeToString(digest)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("approver %s declined with status %d", a.address, resp.StatusCode)
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result); err != nil {
		return nil, fmt.Errorf("approver %s returned malformed response: %w", a.address, err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(result.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("approver %s returned non-hex signature", a.address)
	}
	return sig, nil
}

// ParseApprovers builds the approver set from a comma-separated list. An
// entry of the form address=url becomes a remote approver; anything else is
// treated as a hex private key for a local approver.
func ParseApprovers(spec string) ([]Approver, error) {
	var approvers []Approver
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if address, endpoint, ok := strings.Cut(entry, "="); ok {
			approvers = append(approvers, NewRemoteApprover(address, endpoint, nil))
			continue
		}
		local, err := NewLocalApprover(entry)
		if err != nil {
			return nil, err
		}
		approvers = append(approvers, local)
	}
	return approvers, nil
}

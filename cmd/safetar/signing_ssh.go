package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const manifestSignaturePrefix = "sshsig-v1"

// signManifest signs the manifest file with the SSH private key at keyPath
// and writes the envelope to <manifest>.sig.
func signManifest(manifestPath, keyPath string) error {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}

	payload, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %q: %w", manifestPath, err)
	}

	envelope, err := signPayload(signer, payload)
	if err != nil {
		return fmt.Errorf("sign manifest: %w", err)
	}

	sigPath := manifestPath + ".sig"
	if err := os.WriteFile(sigPath, []byte(envelope+"\n"), 0o644); err != nil {
		return fmt.Errorf("write signature %q: %w", sigPath, err)
	}
	return nil
}

func signPayload(signer ssh.Signer, payload []byte) (string, error) {
	sig, err := signer.Sign(rand.Reader, payload)
	if err != nil {
		return "", err
	}
	pubB64 := base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal())
	sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
	return fmt.Sprintf("%s:%s:%s:%s", manifestSignaturePrefix, sig.Format, pubB64, sigB64), nil
}

// verifyManifestSignature checks the signature envelope against the manifest
// bytes. When signerKeyPath names an authorized_keys-style public key, the
// key embedded in the envelope must also match it.
func verifyManifestSignature(manifestPath, sigPath, signerKeyPath string) error {
	if sigPath == "" {
		sigPath = manifestPath + ".sig"
	}

	rawSig, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("read signature %q: %w", sigPath, err)
	}
	format, pub, sigBlob, err := parseSignatureEnvelope(strings.TrimSpace(string(rawSig)))
	if err != nil {
		return fmt.Errorf("parse signature %q: %w", sigPath, err)
	}

	if signerKeyPath != "" {
		expanded, err := expandUserPath(signerKeyPath)
		if err != nil {
			return err
		}
		rawPub, err := os.ReadFile(expanded)
		if err != nil {
			return fmt.Errorf("read signer key %q: %w", expanded, err)
		}
		trusted, _, _, _, err := ssh.ParseAuthorizedKey(rawPub)
		if err != nil {
			return fmt.Errorf("parse signer key %q: %w", expanded, err)
		}
		if !strings.EqualFold(ssh.FingerprintSHA256(trusted), ssh.FingerprintSHA256(pub)) {
			return fmt.Errorf("manifest signature key does not match %q", expanded)
		}
	}

	payload, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %q: %w", manifestPath, err)
	}
	if err := pub.Verify(payload, &ssh.Signature{Format: format, Blob: sigBlob}); err != nil {
		return fmt.Errorf("manifest signature verification failed: %w", err)
	}
	return nil
}

func parseSignatureEnvelope(envelope string) (format string, pub ssh.PublicKey, sigBlob []byte, err error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 4 || parts[0] != manifestSignaturePrefix {
		return "", nil, nil, fmt.Errorf("malformed envelope")
	}
	pubBytes, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", nil, nil, fmt.Errorf("decode public key: %w", err)
	}
	pub, err = ssh.ParsePublicKey(pubBytes)
	if err != nil {
		return "", nil, nil, fmt.Errorf("parse public key: %w", err)
	}
	sigBlob, err = base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return "", nil, nil, fmt.Errorf("decode signature: %w", err)
	}
	return parts[1], pub, sigBlob, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}

package swizzle

import (
	"encoding/json"

	"github.com/Layr-Labs/heartbeat-go/pkg/heartbeat"
)

// Canonical wire shapes. Field elements travel as decimal strings rather
// than JSON numbers so consumers without arbitrary-precision JSON do not
// lose precision on primes of 64 bits and above.

type challengeDTO struct {
	Chunks *int64  `json:"chunks"`
	VMax   *string `json:"v_max"`
	Key    *string `json:"key"`
}

// MarshalJSON implements the canonical challenge shape.
func (c *Challenge) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"chunks": c.Chunks,
		"v_max":  heartbeat.EncodeInt(c.VMax),
		"key":    heartbeat.EncodeBytes(c.Key),
	})
}

// UnmarshalJSON decodes the canonical challenge shape.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	var dto challengeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("challenge: %v", err)
	}
	if dto.Chunks == nil || dto.VMax == nil || dto.Key == nil {
		return heartbeat.Malformed("challenge: missing field")
	}
	vmax, err := heartbeat.DecodeInt(*dto.VMax)
	if err != nil {
		return err
	}
	key, err := heartbeat.DecodeBytes(*dto.Key)
	if err != nil {
		return err
	}
	c.Chunks = *dto.Chunks
	c.VMax = vmax
	c.Key = key
	return nil
}

type tagDTO struct {
	Sigma *[]string `json:"sigma"`
}

// MarshalJSON implements the canonical tag shape.
func (t *Tag) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"sigma": heartbeat.EncodeIntList(t.Sigma),
	})
}

// UnmarshalJSON decodes the canonical tag shape.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var dto tagDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("tag: %v", err)
	}
	if dto.Sigma == nil {
		return heartbeat.Malformed("tag: missing sigma")
	}
	sigma, err := heartbeat.DecodeIntList(*dto.Sigma)
	if err != nil {
		return err
	}
	t.Sigma = sigma
	return nil
}

type stateDTO struct {
	FKey      *string `json:"f_key"`
	AlphaKey  *string `json:"alpha_key"`
	Chunks    *int64  `json:"chunks"`
	Encrypted *bool   `json:"encrypted"`
	IV        *string `json:"iv"`
	HMAC      *string `json:"hmac"`
}

// MarshalJSON implements the canonical state shape.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"f_key":     heartbeat.EncodeBytes(s.FKey),
		"alpha_key": heartbeat.EncodeBytes(s.AlphaKey),
		"chunks":    s.Chunks,
		"encrypted": s.Encrypted,
		"iv":        heartbeat.EncodeBytes(s.IV),
		"hmac":      heartbeat.EncodeBytes(s.HMAC),
	})
}

// UnmarshalJSON decodes the canonical state shape.
func (s *State) UnmarshalJSON(data []byte) error {
	var dto stateDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("state: %v", err)
	}
	if dto.FKey == nil || dto.AlphaKey == nil || dto.Chunks == nil ||
		dto.Encrypted == nil || dto.IV == nil || dto.HMAC == nil {
		return heartbeat.Malformed("state: missing field")
	}
	fKey, err := heartbeat.DecodeBytes(*dto.FKey)
	if err != nil {
		return err
	}
	alphaKey, err := heartbeat.DecodeBytes(*dto.AlphaKey)
	if err != nil {
		return err
	}
	iv, err := heartbeat.DecodeBytes(*dto.IV)
	if err != nil {
		return err
	}
	sig, err := heartbeat.DecodeBytes(*dto.HMAC)
	if err != nil {
		return err
	}
	s.FKey = fKey
	s.AlphaKey = alphaKey
	s.Chunks = *dto.Chunks
	s.Encrypted = *dto.Encrypted
	s.IV = iv
	s.HMAC = sig
	return nil
}

type proofDTO struct {
	Mu    *[]string `json:"mu"`
	Sigma *string   `json:"sigma"`
}

// MarshalJSON implements the canonical proof shape.
func (p *Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"mu":    heartbeat.EncodeIntList(p.Mu),
		"sigma": heartbeat.EncodeInt(p.Sigma),
	})
}

// UnmarshalJSON decodes the canonical proof shape.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var dto proofDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("proof: %v", err)
	}
	if dto.Mu == nil || dto.Sigma == nil {
		return heartbeat.Malformed("proof: missing mu or sigma")
	}
	mu, err := heartbeat.DecodeIntList(*dto.Mu)
	if err != nil {
		return err
	}
	sigma, err := heartbeat.DecodeInt(*dto.Sigma)
	if err != nil {
		return err
	}
	p.Mu = mu
	p.Sigma = sigma
	return nil
}

type schemeDTO struct {
	Key     *string `json:"key"`
	Prime   *string `json:"prime"`
	Sectors *int    `json:"sectors"`
}

// MarshalJSON serializes the scheme itself (key, prime, sectors) so the
// public copy can travel to the prover. The prover receives an empty key.
func (s *Scheme) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"key":     heartbeat.EncodeBytes(s.key),
		"prime":   heartbeat.EncodeInt(s.prime),
		"sectors": s.sectors,
	})
}

// UnmarshalJSON decodes a serialized scheme.
func (s *Scheme) UnmarshalJSON(data []byte) error {
	var dto schemeDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return heartbeat.Malformed("scheme: %v", err)
	}
	if dto.Key == nil || dto.Prime == nil || dto.Sectors == nil {
		return heartbeat.Malformed("scheme: missing field")
	}
	key, err := heartbeat.DecodeBytes(*dto.Key)
	if err != nil {
		return err
	}
	prime, err := heartbeat.DecodeInt(*dto.Prime)
	if err != nil {
		return err
	}
	s.key = key
	s.prime = prime
	s.sectors = *dto.Sectors
	s.sectorSize = prime.BitLen() / 8
	return nil
}

// Package wire defines the named-data records exchanged by the overlay: the
// application name schema, interest/data packets, and the ModelData payload
// codec.
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package wire

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Name component semantics, by position:
//
//	0   destination node prefix
//	1   dot-joined list of leaves this (sub-)interest covers
//	-2  type: "initialization" | "data"
//	-1  iteration sequence number (decimal)
const (
	TypeInit = "initialization"
	TypeData = "data"
)

// Name is an ordered component sequence; the canonical string form is
// "/comp0/comp1/.../seq".
type Name struct {
	comps []string
}

func NewName(comps ...string) Name { return Name{comps: comps} }

func ParseName(s string) (Name, error) {
	if !strings.HasPrefix(s, "/") {
		return Name{}, errors.Errorf("name %q: missing leading slash", s)
	}
	comps := strings.Split(strings.TrimPrefix(s, "/"), "/")
	if len(comps) == 0 || comps[0] == "" {
		return Name{}, errors.Errorf("name %q: empty", s)
	}
	return Name{comps: comps}, nil
}

func (n Name) Len() int { return len(n.comps) }

// Component supports negative indexing from the end, ns3 style.
func (n Name) Component(i int) string {
	if i < 0 {
		i += len(n.comps)
	}
	if i < 0 || i >= len(n.comps) {
		return ""
	}
	return n.comps[i]
}

func (n Name) String() string { return "/" + strings.Join(n.comps, "/") }

// AppendSeq returns a copy of n with the sequence component appended.
func (n Name) AppendSeq(seq uint32) Name {
	comps := make([]string, 0, len(n.comps)+1)
	comps = append(comps, n.comps...)
	comps = append(comps, strconv.FormatUint(uint64(seq), 10))
	return Name{comps: comps}
}

func (n Name) Seq() (uint32, error) {
	last := n.Component(-1)
	v, err := strconv.ParseUint(last, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "name %s: bad sequence component", n)
	}
	return uint32(v), nil
}

func (n Name) Type() string { return n.Component(-2) }

// Prefix is the destination node (component 0).
func (n Name) Prefix() string { return n.Component(0) }

// Leaves splits the dot-joined leaf list (component 1).
func (n Name) Leaves() []string {
	if c := n.Component(1); c != "" {
		return strings.Split(c, ".")
	}
	return nil
}

//
// packets carried by the face
//

type Interest struct {
	Name     Name
	Nonce    uint32
	Lifetime time.Duration
}

type Data struct {
	Name           Name
	Payload        []byte
	Freshness      time.Duration
	CongestionMark int
}

type Nack struct {
	Interest Interest
	Reason   string
}

// DataName builds "/<child>/<leaf.leaf...>/data" (sequence appended separately).
func DataName(child string, leaves []string) Name {
	return NewName(child, strings.Join(leaves, "."), TypeData)
}

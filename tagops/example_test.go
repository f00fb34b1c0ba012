// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tagops_test

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/ZaparooProject/go-mfrc522/tagops"
)

func Example() {
	ctx := context.Background()

	// A simulated chip stands in for the serial link
	sim := virt.NewVirtualMFRC522()
	card := virt.NewVirtualClassic(virt.TestUID)
	card.SetBlock(4, []byte("hello, mifare!!!"))
	sim.InsertCard(card)

	reader, err := mfrc522.New(virt.NewSimulatorTransport(sim))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer func() { _ = reader.Close() }()
	fmt.Println("chip", reader.Version())

	if _, err := reader.Request(ctx, mfrc522.ReqIdle); err != nil {
		fmt.Println(err)
		return
	}
	uid, err := reader.Anticollision(ctx)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("uid", uid)

	session := tagops.New(reader)
	if err := session.SetTag(ctx, uid); err != nil {
		fmt.Println(err)
		return
	}
	if err := session.SetAuth(mfrc522.AuthB, mfrc522.DefaultKey[:]); err != nil {
		fmt.Println(err)
		return
	}
	data, err := session.ReadBlock(ctx, tagops.BlockAddress(1, 0))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s %q\n", tagops.SectorString(4), data)

	// Output:
	// chip v2.0
	// uid 12:34:56:00
	// S1B0 "hello, mifare!!!"
}

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

/*
Package mfrc522 drives an NXP MFRC522 contactless reader IC and talks to
MIFARE Classic 1K cards through it.

The chip is reached through a register-level Transport. UART, I2C and SPI
backends live under transport/. On top of register access the Reader runs
the chip's Transceive and Authenticate commands and the CRC coprocessor,
and implements the ISO 14443-A activation sequence (REQA/WUPA,
anticollision, SELECT, HALT) plus MIFARE Classic authentication, block
read and two-phase block write.

Basic usage:

	transport, err := uart.New("/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}

	reader, err := mfrc522.New(transport)
	if err != nil {
	    _ = transport.Close()
	    log.Fatal(err)
	}
	defer reader.Close()

	ctx := context.Background()
	if _, err := reader.Request(ctx, mfrc522.ReqIdle); err != nil {
	    if mfrc522.IsNoCard(err) {
	        return // nothing in the field
	    }
	    log.Fatal(err)
	}
	uid, err := reader.Anticollision(ctx)
	...
	_, err = reader.SelectTag(ctx, uid)
	...
	err = reader.Authenticate(ctx, mfrc522.AuthA, 4, mfrc522.DefaultKey, uid)
	...
	data, err := reader.ReadBlock(ctx, 4)

The tagops package keeps the selected UID and key between calls and only
re-authenticates when the sector changes. The polling package waits for
cards and runs a callback for each new one.

A Reader serializes its own methods, but a card transaction is a sequence
of calls; callers sharing one Reader across goroutines must coordinate at
that level (polling.Monitor.Exclusive does this).
*/
package mfrc522

/***
    Copyright (c) 2016, Hector Sanjuan

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU Lesser General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU Lesser General Public License for more details.

    You should have received a copy of the GNU Lesser General Public License
    along with this program.  If not, see <http://www.gnu.org/licenses/>.
***/

package capabilitycontainer

import (
	"bytes"
	"testing"

	"github.com/nfc-tools/nfcd/helpers"
)

func TestMarshalUnmarshal(t *testing.T) {
	testcases := []*CapabilityContainer{
		&CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(15),
			MappingVersion: 0x20,
			MLe:            helpers.Uint16ToBytes(255),
			MLc:            helpers.Uint16ToBytes(255),
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE104,
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
		},
		&CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(18),
			MappingVersion: 0x20,
			MLe:            helpers.Uint16ToBytes(255),
			MLc:            helpers.Uint16ToBytes(255),
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE104,
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
			TLVBlocks: []*TLV{
				&TLV{
					T: 0x05,
					L: 1,
					V: []byte{0xaa},
				},
			},
		},
	}

	testcasesbad := map[string]*CapabilityContainer{
		"bad_cclen": &CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(3), // bad
			MappingVersion: 0x20,
			MLe:            helpers.Uint16ToBytes(255),
			MLc:            helpers.Uint16ToBytes(255),
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE104,
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
		},
		"bad_mle": &CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(15),
			MappingVersion: 0x20,
			MLe:            helpers.Uint16ToBytes(0), // bad
			MLc:            helpers.Uint16ToBytes(255),
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE104,
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
		},
		"bad_mlc": &CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(15),
			MappingVersion: 0x20,
			MLe:            helpers.Uint16ToBytes(255),
			MLc:            helpers.Uint16ToBytes(0), // bad
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE104,
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
		},
		"bad_ftlv": &CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(15),
			MappingVersion: 0x20,
			MLe:            helpers.Uint16ToBytes(255),
			MLc:            helpers.Uint16ToBytes(255),
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE102, // bad, reserved
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
		},
		"bad_mapping_version": &CapabilityContainer{
			CCLEN:          helpers.Uint16ToBytes(15),
			MappingVersion: 0x10, // bad, major version 1 instead of 2
			MLe:            helpers.Uint16ToBytes(255),
			MLc:            helpers.Uint16ToBytes(255),
			NDEFFileControlTLV: &NDEFFileControlTLV{
				T:                        0x04,
				L:                        0x06,
				FileID:                   0xE104,
				MaximumFileSize:          90,
				FileReadAccessCondition:  0,
				FileWriteAccessCondition: 0,
			},
		},
	}

	t.Log("Testing with good CCs")
	for _, c := range testcases {
		ccBytes, err := c.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		tempcc := &CapabilityContainer{}
		if _, err := tempcc.Unmarshal(ccBytes); err != nil {
			t.Fatal(err)
		}
		tempccBytes, _ := tempcc.Marshal()
		t.Logf("Expected: % 02X", ccBytes)
		t.Logf("Got     : % 02X ", tempccBytes)
		if !bytes.Equal(ccBytes, tempccBytes) {
			t.Fail()
		}
	}

	t.Log("Testing with bad CCs")
	for k, c := range testcasesbad {
		_, err := c.Marshal()
		if err == nil {
			t.Error("Testcase", k, "should have failed")
		} else {
			t.Logf("%s: %s", k, err.Error())
		}
	}
}

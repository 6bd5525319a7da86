package main

import "testing"

func TestParseTxHash(t *testing.T) {
	const want = "0x5e1fd9c1a7b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f6071829304a5b"
	for _, in := range []string{
		want,
		"0x5E1FD9C1A7B2C3D4E5F60718293A4B5C6D7E8F90A1B2C3D4E5F6071829304A5B",
		"5e1fd9c1a7b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f6071829304a5b",
		"  0X5e1fd9c1a7b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f6071829304a5b\n",
	} {
		got, err := parseTxHash(in)
		if err != nil || got != want {
			t.Errorf("parseTxHash(%q) = %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "0x", "0x1234", "0xzz1fd9c1a7b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f6071829304a5b"} {
		if _, err := parseTxHash(bad); err == nil {
			t.Errorf("parseTxHash(%q) should fail", bad)
		}
	}
}

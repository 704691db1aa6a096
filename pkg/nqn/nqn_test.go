package nqn

import "testing"

func TestValidateAcceptsDateDomainForm(t *testing.T) {
	cases := []string{
		"nqn.2016-06.io.spdk:cnode1",
		"nqn.2014-08.org.nvmexpress:not-a-uuid-but-user-part",
		"nqn.1993-11.com.example:storage.disk1",
	}
	for _, c := range cases {
		if err := Validate(c); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", c, err)
		}
	}
}

func TestValidateAcceptsUUIDForm(t *testing.T) {
	s := "nqn.2014-08.org.nvmexpress:uuid:bd0b5e4a-5a4a-4bd3-91a7-ddf2cf789012"
	if err := Validate(s); err != nil {
		t.Errorf("Validate(%q) = %v, want nil", s, err)
	}
}

func TestValidateRejectsBadUUID(t *testing.T) {
	s := "nqn.2014-08.org.nvmexpress:uuid:not-a-uuid"
	if err := Validate(s); err == nil {
		t.Errorf("Validate(%q) = nil, want error", s)
	}
}

func TestValidateRejectsTooShort(t *testing.T) {
	if err := Validate("nqn.a"); err == nil {
		t.Error("expected error for too-short nqn")
	}
}

func TestValidateRejectsTooLong(t *testing.T) {
	long := "nqn.2016-06.io.spdk:" + string(make([]byte, 250))
	for i := range long {
		_ = i
	}
	if err := Validate(long); err == nil {
		t.Error("expected error for too-long nqn")
	}
}

func TestValidateRejectsBadDate(t *testing.T) {
	if err := Validate("nqn.2016-13.io.spdk:cnode1"); err == nil {
		t.Error("expected error for invalid month")
	}
}

func TestValidateRejectsEmptyUser(t *testing.T) {
	if err := Validate("nqn.2016-06.io.spdk:"); err == nil {
		t.Error("expected error for empty user part")
	}
}

func TestValidateRejectsBadLabel(t *testing.T) {
	if err := Validate("nqn.2016-06.io.-bad-:cnode1"); err == nil {
		t.Error("expected error for leading-hyphen label")
	}
}

func TestIsDiscovery(t *testing.T) {
	if !IsDiscovery(DiscoveryNQN) {
		t.Error("expected DiscoveryNQN to be recognized")
	}
	if IsDiscovery("nqn.2016-06.io.spdk:cnode1") {
		t.Error("did not expect ordinary nqn to be discovery")
	}
}

func TestIsAnyHost(t *testing.T) {
	if !IsAnyHost("*") {
		t.Error("expected '*' to be any-host")
	}
	if IsAnyHost("nqn.2016-06.io.spdk:host1") {
		t.Error("did not expect ordinary nqn to be any-host")
	}
}

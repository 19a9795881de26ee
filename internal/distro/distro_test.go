package distro

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		fields map[string]string
		want   Family
	}{
		{map[string]string{"ID": "ubuntu", "VERSION_ID": "22.04"}, FamilyAPT},
		{map[string]string{"ID": "debian"}, FamilyAPT},
		{map[string]string{"ID": "rhel", "VERSION_ID": "9.2"}, FamilyDNF},
		{map[string]string{"ID": "rhel", "VERSION_ID": "7.9"}, FamilyYum},
		{map[string]string{"ID": "centos", "VERSION_ID": "8"}, FamilyDNF},
		{map[string]string{"ID": "fedora", "VERSION_ID": "39"}, FamilyDNF},
		{map[string]string{"ID": "sles", "VERSION_ID": "15.4"}, FamilyZypper},
		{map[string]string{"ID": "opensuse-leap"}, FamilyZypper},
		{map[string]string{"ID": "linuxmint", "ID_LIKE": "ubuntu debian"}, FamilyAPT},
	}

	for _, c := range cases {
		info := classify(c.fields)
		if info == nil {
			t.Errorf("classify(%v) = nil, want family %v", c.fields, c.want)
			continue
		}
		if info.Family != c.want {
			t.Errorf("classify(%v) = %v, want %v", c.fields, info.Family, c.want)
		}
	}
}

func TestClassifyUnknown(t *testing.T) {
	if info := classify(map[string]string{"ID": "plan9"}); info != nil {
		t.Errorf("expected nil for unknown distro, got %+v", info)
	}
}

package cloudcli

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		name        string
		storageType string
		output      string
		want        int64
		ok          bool
	}{
		{
			name:        "aws total size with commas",
			storageType: "s3",
			output:      "Total Objects: 1284\n   Total Size: 1,234,567 Bytes",
			want:        1234567,
			ok:          true,
		},
		{
			name:        "aws empty prefix",
			storageType: "s3a",
			output:      "Total Objects: 0\n   Total Size: 0 Bytes",
			want:        0,
			ok:          true,
		},
		{
			name:        "aws zero objects without size line",
			storageType: "s3n",
			output:      "Total Objects: 0",
			want:        0,
			ok:          true,
		},
		{
			name:        "ossutil sum size",
			storageType: "oss",
			output:      "object count: 42\ntotal object sum size: 987654321",
			want:        987654321,
			ok:          true,
		},
		{
			name:        "s3cmd du line",
			storageType: "s3cmd",
			output:      "some banner\n   4096   12 objects s3://bucket/prefix/",
			want:        4096,
			ok:          true,
		},
		{
			name:        "cos parenthesized bytes",
			storageType: "cos",
			output:      "Total: 1.2 MB (1258291 Bytes)",
			want:        1258291,
			ok:          true,
		},
		{
			name:        "hdfs du leading digits",
			storageType: "hdfs",
			output:      "  5368709120  16106127360  /starrocks/data",
			want:        5368709120,
			ok:          true,
		},
		{
			name:        "gsutil du leading digits",
			storageType: "gs",
			output:      "2048 gs://bucket/obj",
			want:        2048,
			ok:          true,
		},
		{
			name:        "azblob bare number",
			storageType: "azblob",
			output:      " 73400320 \n",
			want:        73400320,
			ok:          true,
		},
		{
			name:        "unknown storage type",
			storageType: "ftp",
			output:      "12345",
			ok:          false,
		},
		{
			name:        "aws unparseable output",
			storageType: "s3",
			output:      "An error occurred (AccessDenied)",
			ok:          false,
		},
		{
			name:        "azblob non-numeric",
			storageType: "azblob",
			output:      "ERROR: auth failed",
			ok:          false,
		},
		{
			name:        "storage type case-insensitive",
			storageType: "S3",
			output:      "Total Size: 77 Bytes",
			want:        77,
			ok:          true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ParseSize(c.storageType, c.output)
			if ok != c.ok {
				t.Fatalf("ParseSize(%q) ok = %v, want %v", c.storageType, ok, c.ok)
			}
			if ok && got != c.want {
				t.Errorf("ParseSize(%q) = %d, want %d", c.storageType, got, c.want)
			}
		})
	}
}

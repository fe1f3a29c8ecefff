// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// GetGCSObjectName is the chain context key holding a *GCSObject.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSPubSubNotification is the JSON payload Cloud Storage publishes when an
// object is finalized. Only the fields used by ingestion are decoded.
type GCSPubSubNotification struct {
	Kind        string            `json:"kind"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	Generation  string            `json:"generation"`
	ContentType string            `json:"contentType"`
	TimeCreated string            `json:"timeCreated"`
	Size        string            `json:"size"`
	MD5Hash     string            `json:"md5Hash"`
	MetaData    map[string]string `json:"metadata"`
}

// ParseGCSNotification decodes a notification and checks it names an object.
func ParseGCSNotification(data string) (*GCSPubSubNotification, error) {
	var n GCSPubSubNotification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, fmt.Errorf("invalid storage notification: %w", err)
	}
	if n.Bucket == "" || n.Name == "" {
		return nil, fmt.Errorf("storage notification without bucket or object name")
	}
	return &n, nil
}

// SizeBytes parses the decimal size field, returning -1 when absent.
func (n *GCSPubSubNotification) SizeBytes() int64 {
	v, err := strconv.ParseInt(n.Size, 10, 64)
	if err != nil {
		return -1
	}
	return v
}

// Object converts the notification into a GCSObject.
func (n *GCSPubSubNotification) Object() *GCSObject {
	return &GCSObject{Bucket: n.Bucket, Name: n.Name, MIMEType: n.ContentType, Size: n.SizeBytes()}
}

// GCSObject identifies an object in a bucket.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
	Size     int64
}

// URI renders gs://bucket/name.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// BaseName is the object name without any folder prefix.
func (o *GCSObject) BaseName() string {
	return path.Base(o.Name)
}

// IsVideo reports whether the content type or extension names a video.
func (o *GCSObject) IsVideo(allowedExtensions []string) bool {
	if strings.HasPrefix(o.MIMEType, "video/") {
		return true
	}
	ext := strings.ToLower(path.Ext(o.Name))
	for _, a := range allowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

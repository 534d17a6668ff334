package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// mainAttributes is the subset of upstream card fields persisted locally.
// Everything else in the upstream record is ignored.
var mainAttributes = []string{
	"id", "name", "type", "desc", "atk", "def", "level", "race",
	"attribute", "scale", "archetype", "linkval", "linkmarkers",
}

// ImageSet holds the three image locators published for one identity.
type ImageSet struct {
	ID         int64
	URL        string
	SmallURL   string
	CroppedURL string
}

// Entity is one catalog record. A card may be published under several
// identities (variant ids), each with its own image set; the metadata
// payload is materialized once per identity with the id substituted.
type Entity struct {
	ID   int64
	Name string

	payload    map[string]any
	identities []int64
	images     map[int64]ImageSet
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	id, err := numberField(raw, "id")
	if err != nil {
		return err
	}
	name, _ := raw["name"].(string)
	if name == "" {
		return fmt.Errorf("card %d has no name", id)
	}

	payload := make(map[string]any, len(mainAttributes))
	for _, attr := range mainAttributes {
		if value, ok := raw[attr]; ok {
			payload[attr] = value
		}
	}

	rawImages, _ := raw["card_images"].([]any)
	if len(rawImages) == 0 {
		return fmt.Errorf("card %q has no image descriptors", name)
	}

	identities := make([]int64, 0, len(rawImages))
	images := make(map[int64]ImageSet, len(rawImages))
	for _, entry := range rawImages {
		descriptor, ok := entry.(map[string]any)
		if !ok {
			return fmt.Errorf("card %q has a malformed image descriptor", name)
		}
		imageID, err := numberField(descriptor, "id")
		if err != nil {
			return fmt.Errorf("card %q: %w", name, err)
		}
		if _, dup := images[imageID]; dup {
			return fmt.Errorf("card %q has multiple image descriptors for id %d", name, imageID)
		}

		identities = append(identities, imageID)
		images[imageID] = ImageSet{
			ID:         imageID,
			URL:        stringField(descriptor, "image_url"),
			SmallURL:   stringField(descriptor, "image_url_small"),
			CroppedURL: stringField(descriptor, "image_url_cropped"),
		}
	}

	e.ID = id
	e.Name = name
	e.payload = payload
	e.identities = identities
	e.images = images
	return nil
}

// Identities returns the ordered set of ids this entity is published under.
func (e *Entity) Identities() []int64 {
	return append([]int64(nil), e.identities...)
}

// ImageSetFor returns the image descriptor set published for identity.
func (e *Entity) ImageSetFor(identity int64) (ImageSet, error) {
	set, ok := e.images[identity]
	if !ok {
		return ImageSet{}, fmt.Errorf("card %q has no image descriptor for id %d", e.Name, identity)
	}
	return set, nil
}

// PayloadFor materializes the metadata payload for one identity: the main
// attributes with the id substituted and that identity's image locators
// merged in.
func (e *Entity) PayloadFor(identity int64) (map[string]any, error) {
	set, err := e.ImageSetFor(identity)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(e.payload)+3)
	for key, value := range e.payload {
		payload[key] = value
	}
	payload["id"] = identity
	payload["image_url"] = set.URL
	payload["image_url_small"] = set.SmallURL
	payload["image_url_cropped"] = set.CroppedURL

	return payload, nil
}

func numberField(raw map[string]any, key string) (int64, error) {
	num, ok := raw[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("field %q is missing or not a number", key)
	}
	value, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return value, nil
}

func stringField(raw map[string]any, key string) string {
	value, _ := raw[key].(string)
	return value
}
